// Package viz renders a running scene in the terminal.
//
// The live view is a Bubble Tea program that ticks the simulator once per
// terminal frame and draws every deformable body on a Braille canvas,
// projected onto the XZ plane.
//
// # Key Bindings
//
//	Space - Pause/Resume ticking
//	T     - Toggle threaded mode (resets the solver)
//	P     - Toggle latest-wins / lossless output (resets the solver)
//	R     - Reset the solver with the current settings
//	Q     - Quit
package viz
