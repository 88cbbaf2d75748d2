// Package tui is a terminal front end for a viewing session: an iso slider,
// the list of loaded files with visibility checkboxes, and a path prompt for
// opening files or folders.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ppview/internal/session"
	"ppview/pkg/scene"
	"ppview/pkg/visualization"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

type mode int

const (
	modeList mode = iota
	modeOpen
)

type model struct {
	sess *session.Session

	mode     mode
	cursor   int
	exponent int
	editBuf  string

	status string
	err    error

	width  int
	height int
}

// New returns the bubbletea model for sess. The slider starts at the
// position matching the session's iso value, or the default position.
func New(sess *session.Session) tea.Model {
	return newModel(sess)
}

func newModel(sess *session.Session) model {
	m := model{
		sess:     sess,
		exponent: -2,
		width:    80,
		height:   24,
	}
	for n := session.SliderMin; n <= session.SliderMax; n++ {
		if session.IsoFromSlider(n) == sess.IsoValue() {
			m.exponent = n
		}
	}
	return m
}

// Run blocks until the user quits
func Run(sess *session.Session) error {
	p := tea.NewProgram(New(sess), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if m.mode == modeOpen {
		return m.openKey(msg)
	}
	return m.listKey(msg)
}

func (m model) listKey(msg tea.KeyMsg) (model, tea.Cmd) {
	subs := m.sess.Subsystems()

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(subs)-1 {
			m.cursor++
		}
	case "left", "h":
		m.setExponent(m.exponent - 1)
	case "right", "l":
		m.setExponent(m.exponent + 1)
	case " ", "enter":
		if len(subs) == 0 {
			return m, nil
		}
		sub := subs[m.cursor]
		visible, _ := m.sess.Visible(sub.Path)
		m.report(m.sess.SetVisible(sub.Path, !visible))
		switch {
		case m.err != nil:
		case visible:
			m.status = sub.Name + " hidden"
		default:
			m.status = sub.Name + " shown"
		}
	case "o":
		m.mode = modeOpen
		m.editBuf = ""
	case "c":
		m.sess.Clear()
		m.cursor = 0
		m.err = nil
		m.status = "cleared"
	case "r":
		m.report(m.sess.Redraw())
		if m.err == nil {
			m.status = "redrawn"
		}
	}
	return m, nil
}

func (m model) openKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		path := strings.TrimSpace(m.editBuf)
		m.mode = modeList
		m.editBuf = ""
		if path == "" {
			return m, nil
		}
		n, err := m.sess.Drop(path)
		m.report(err)
		if err == nil {
			m.status = fmt.Sprintf("loaded %d file(s) from %s", n, filepath.Base(path))
		}
	case tea.KeyEsc, tea.KeyCtrlC:
		m.mode = modeList
		m.editBuf = ""
	case tea.KeyBackspace:
		if r := []rune(m.editBuf); len(r) > 0 {
			m.editBuf = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.editBuf += " "
	case tea.KeyRunes:
		m.editBuf += string(msg.Runes)
	}
	return m, nil
}

func (m *model) setExponent(n int) {
	if n < session.SliderMin || n > session.SliderMax {
		return
	}
	if err := m.sess.SetIsoExponent(n); err != nil {
		m.report(err)
		return
	}
	m.exponent = n
	m.err = nil
	m.status = fmt.Sprintf("iso %g", m.sess.IsoValue())
}

func (m *model) report(err error) {
	m.err = err
	if err != nil {
		m.status = ""
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("      " + cyan.Render("p p v i e w") + "  " + dim.Render(fmt.Sprintf("%d file(s)", m.sess.Len())) + "\n")
	b.WriteString(dimmer.Render("      "+strings.Repeat("─", 36)) + "\n\n")

	b.WriteString("      " + dim.Render("iso ") + m.slider() + "  " + magenta.Render(fmt.Sprintf("%g", m.sess.IsoValue())) + "\n\n")

	subs := m.sess.Subsystems()
	if len(subs) == 0 {
		b.WriteString("        " + dimmer.Render("no files loaded, press o to open one") + "\n")
	}
	for i, sub := range subs {
		check := "[ ]"
		if visible, _ := m.sess.Visible(sub.Path); visible {
			check = "[x]"
		}
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(hexColor(visualization.SurfaceColor(sub.ColorIndex)))).Render("■")
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(check) + " " + swatch + " " + white.Render(sub.Name) + "\n")
		} else {
			b.WriteString("        " + dim.Render(check) + " " + swatch + " " + dim.Render(sub.Name) + "\n")
		}
	}

	b.WriteString("\n")
	if m.mode == modeOpen {
		b.WriteString("      " + cyan.Render("open ") + white.Render(m.editBuf+"▋") + "\n")
		b.WriteString(dim.Render("      enter load   esc cancel") + "\n")
		return b.String()
	}

	if m.err != nil {
		b.WriteString("      " + red.Render(m.err.Error()) + "\n")
	} else if m.status != "" {
		b.WriteString("      " + dim.Render(m.status) + "\n")
	}
	b.WriteString(dim.Render("      ←→ iso   ↑↓ select   space show/hide   o open   c clear   r redraw   q quit") + "\n")

	return b.String()
}

// slider draws one stop per exponent with the current one highlighted
func (m model) slider() string {
	var parts []string
	for n := session.SliderMin; n <= session.SliderMax; n++ {
		label := fmt.Sprintf("1e%d", n)
		if n == m.exponent {
			parts = append(parts, cyan.Render("●"+label))
		} else {
			parts = append(parts, dimmer.Render("○"+label))
		}
	}
	return strings.Join(parts, dimmer.Render("─"))
}

func hexColor(c scene.Color) string {
	return fmt.Sprintf("#%02x%02x%02x", uint8(c[0]*255+0.5), uint8(c[1]*255+0.5), uint8(c[2]*255+0.5))
}
