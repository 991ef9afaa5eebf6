package config

import "sort"

// Presets are named overlays on DefaultConfig.
var Presets = map[string]func(*Config){
	"default": func(*Config) {},
	"threaded": func(c *Config) {
		c.Threaded = true
	},
	"lossless": func(c *Config) {
		c.Threaded = true
		c.OutputPolicy = "lossless"
		c.OutputCapacity = 32
	},
	"stress": func(c *Config) {
		c.Threaded = true
		c.Substeps = 8
		c.Iterations = 12
		c.Frames = 1200
		c.Scene.Objects = nil
		for i := 0; i < 6; i++ {
			c.Scene.Objects = append(c.Scene.Objects,
				Object{Name: "sheet" + string(rune('a'+i)), Kind: "cloth", Cols: 24, Rows: 16, Spacing: 0.1, Sway: 0.4},
				Object{Name: "limb" + string(rune('a'+i)), Kind: "flesh", Segments: 32, Length: 3, Sway: 0.2},
			)
		}
	},
	"still": func(c *Config) {
		c.EnableGravity = false
		c.FixedTimeStep = true
		for i := range c.Scene.Objects {
			c.Scene.Objects[i].Sway = 0
		}
	},
}

// GetPreset returns a fresh config with the named preset applied, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
