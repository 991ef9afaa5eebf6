package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/deformsim/internal/geom"
	"github.com/san-kum/deformsim/internal/owner"
	"github.com/san-kum/deformsim/internal/sim"
)

const (
	canvasWidth     = 60
	canvasHeight    = 20
	historyCapacity = 240
)

type TickMsg time.Time

func tick(rate float64) tea.Cmd {
	return tea.Tick(time.Duration(float64(time.Second)/rate), func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Model is the live view. It is the only caller of its simulator's owner.
type Model struct {
	sim     *sim.Simulator
	cfg     owner.Config
	dt      float64
	rate    float64
	running bool

	canvas *Canvas
	view   Viewport
	last   sim.Sample
	sag    []float64
	err    error
}

func NewModel(s *sim.Simulator, dt float64) Model {
	m := Model{
		sim:     s,
		cfg:     s.Owner().Config(),
		dt:      dt,
		rate:    1 / dt,
		running: true,
		canvas:  NewCanvas(canvasWidth, canvasHeight),
		sag:     make([]float64, 0, historyCapacity),
	}
	var rest [][]geom.Vec3
	for _, e := range s.Scene().Entities {
		rest = append(rest, e.Body.Positions())
	}
	m.view = Fit(rest...)
	return m
}

func (m Model) Init() tea.Cmd { return tick(m.rate) }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "t":
			next := m.cfg
			next.Threaded = !next.Threaded
			m.reset(next)
		case "p":
			next := m.cfg
			next.Policy = owner.Lossless
			if m.cfg.Policy == owner.Lossless {
				next.Policy = owner.LatestWins
			}
			m.reset(next)
		case "r":
			m.reset(m.cfg)
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, tick(m.rate)
	}
	return m, nil
}

func (m *Model) step() {
	m.last = m.sim.Step(m.dt)
	m.sag = append(m.sag, m.last.Sag)
	if len(m.sag) > historyCapacity {
		m.sag = m.sag[1:]
	}
}

func (m *Model) reset(next owner.Config) {
	if err := m.sim.Owner().Reset(next); err != nil {
		m.err = err
		return
	}
	m.cfg = next
	m.err = nil
}

func (m *Model) draw() {
	m.canvas.Clear()
	for _, e := range m.sim.Scene().Entities {
		pos := e.Body.Positions()
		grown := Fit(pos)
		m.view.MinX, m.view.MaxX = min(m.view.MinX, grown.MinX), max(m.view.MaxX, grown.MaxX)
		m.view.MinZ, m.view.MaxZ = min(m.view.MinZ, grown.MinZ), max(m.view.MaxZ, grown.MaxZ)
	}
	for _, e := range m.sim.Scene().Entities {
		m.canvas.DrawMesh(m.view, e.Body.Mesh(), e.Body.Positions())
	}
}

func (m Model) View() string {
	m.draw()

	var s strings.Builder
	status := StatusRunning.Render("RUNNING")
	if !m.running {
		status = StatusPaused.Render("PAUSED")
	}
	s.WriteString(Title.Render("DEFORMSIM") + "  " + status + "\n\n")

	mode := "inline"
	if m.cfg.Threaded {
		mode = "threaded"
	}
	ts := m.sim.Owner().Stats()
	ss := m.sim.Owner().SolverStats()
	s.WriteString(Metric("Mode", mode) + "\n")
	s.WriteString(Metric("Policy", m.cfg.Policy.String()) + "\n")
	s.WriteString(Metric("Frame", fmt.Sprintf("%d", m.last.Solver)) + "\n")
	s.WriteString(Metric("Applied", fmt.Sprintf("%d", m.last.Applied)) + "\n")
	s.WriteString(Metric("Staleness", fmt.Sprintf("%d", m.last.Staleness)) + "\n")
	s.WriteString(Metric("Proxies", fmt.Sprintf("%d", ss.Proxies)) + "\n")
	s.WriteString(Metric("Deferred", fmt.Sprintf("%d", ts.Deferred)) + "\n")
	s.WriteString(Metric("Discarded", fmt.Sprintf("%d", ts.Discarded)) + "\n")
	s.WriteString(Metric("Resets", fmt.Sprintf("%d", ts.Resets)) + "\n")
	s.WriteString(Metric("Sag", fmt.Sprintf("%.3f", m.last.Sag)) + "\n")

	if len(m.sag) > 1 {
		chart := asciigraph.Plot(m.sag, asciigraph.Height(5), asciigraph.Width(30), asciigraph.Caption("sag"))
		s.WriteString("\n" + graphStyle.Render(chart) + "\n")
	}
	if m.err != nil {
		s.WriteString("\n" + Warning.Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n" + KeyHint.Render("SP:Pause T:Threaded P:Policy R:Reset Q:Quit"))

	return lipgloss.JoinHorizontal(lipgloss.Top,
		Panel.Render(m.canvas.String()),
		Panel.Render(s.String()))
}

// Run starts the live view and blocks until the user quits.
func Run(s *sim.Simulator, dt float64) error {
	_, err := tea.NewProgram(NewModel(s, dt), tea.WithAltScreen()).Run()
	return err
}
