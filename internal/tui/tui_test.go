package tui

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"ppview/internal/models"
	"ppview/internal/session"
	"ppview/pkg/qepp"
)

func writeFixture(t *testing.T, dir, name string) string {
	t.Helper()
	const n, a = 8, 6.0
	g := models.NewScalarGrid(models.Diagonal(a, a, a), [3]int{n, n, n})
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				dx, dy, dz := float64(i)-n/2, float64(j)-n/2, float64(k)-n/2
				g.Set(i, j, k, math.Exp(-(dx*dx+dy*dy+dz*dz)/4))
			}
		}
	}
	path := filepath.Join(dir, name)
	if err := qepp.WriteFile(path, &models.System{Cell: g.Lattice, Field: g}); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func press(t *testing.T, m model, keys ...tea.KeyMsg) model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	left  = tea.KeyMsg{Type: tea.KeyLeft}
	right = tea.KeyMsg{Type: tea.KeyRight}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func TestSlider(t *testing.T) {
	sess := session.New()
	m := newModel(sess)
	if m.exponent != -2 {
		t.Fatalf("Expected the slider at -2 for the default iso, got %d", m.exponent)
	}

	m = press(t, m, left)
	if sess.IsoValue() != 0.001 || m.exponent != -3 {
		t.Errorf("Expected iso 0.001 at -3, got %g at %d", sess.IsoValue(), m.exponent)
	}

	// Clamped at both ends
	m = press(t, m, left, left, left, left)
	if m.exponent != session.SliderMin {
		t.Errorf("Expected the slider to stop at %d, got %d", session.SliderMin, m.exponent)
	}
	m = press(t, m, right, right, right, right, right, right)
	if m.exponent != session.SliderMax || sess.IsoValue() != 0.1 {
		t.Errorf("Expected the slider to stop at %d with iso 0.1, got %d and %g", session.SliderMax, m.exponent, sess.IsoValue())
	}
}

func TestOpenAndToggle(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.pp")
	writeFixture(t, dir, "b.pp")

	sess := session.New()
	m := newModel(sess)

	m = press(t, m, runes("o"))
	if m.mode != modeOpen {
		t.Fatal("Expected o to open the path prompt")
	}
	m = press(t, m, runes(dir), enter)
	if m.mode != modeList {
		t.Error("Expected enter to close the prompt")
	}
	if m.err != nil {
		t.Fatalf("Expected the folder to load, got %v", m.err)
	}
	if sess.Len() != 2 {
		t.Fatalf("Expected 2 subsystems, got %d", sess.Len())
	}

	// Hide the second file
	m = press(t, m, down, space)
	b := sess.Subsystems()[1]
	if visible, _ := sess.Visible(b.Path); visible {
		t.Error("Expected b.pp to be hidden")
	}
	if visible, _ := sess.Visible(sess.Subsystems()[0].Path); !visible {
		t.Error("Expected a.pp to stay visible")
	}

	view := m.View()
	if !strings.Contains(view, "[ ]") || !strings.Contains(view, "[x]") {
		t.Errorf("Expected one checked and one unchecked row:\n%s", view)
	}

	m = press(t, m, space)
	if visible, _ := sess.Visible(b.Path); !visible {
		t.Error("Expected b.pp to be shown again")
	}
}

func TestOpenCancelAndErrors(t *testing.T) {
	sess := session.New()
	m := newModel(sess)

	m = press(t, m, runes("o"), runes("abc"), tea.KeyMsg{Type: tea.KeyBackspace})
	if m.editBuf != "ab" {
		t.Errorf("Expected edit buffer %q, got %q", "ab", m.editBuf)
	}
	m = press(t, m, esc)
	if m.mode != modeList || m.editBuf != "" {
		t.Error("Expected esc to cancel the prompt")
	}

	m = press(t, m, runes("o"), runes(filepath.Join(t.TempDir(), "missing.pp")), enter)
	if m.err == nil {
		t.Error("Expected an error for a missing path")
	}
	if !strings.Contains(m.View(), "missing.pp") {
		t.Error("Expected the error in the view")
	}
}

func TestClearAndRedraw(t *testing.T) {
	dir := t.TempDir()
	sess := session.New()
	if _, err := sess.Load(writeFixture(t, dir, "a.pp")); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	m := newModel(sess)

	before := sess.Redraws()
	m = press(t, m, runes("r"))
	if sess.Redraws() != before+1 {
		t.Errorf("Expected r to redraw once, got %d", sess.Redraws()-before)
	}

	m = press(t, m, runes("c"))
	if sess.Len() != 0 || sess.Scene().Len() != 0 {
		t.Errorf("Expected c to clear, got %d subsystems", sess.Len())
	}
	if !strings.Contains(m.View(), "no files loaded") {
		t.Error("Expected the empty-list hint after clearing")
	}

	// Toggling an empty list is harmless
	press(t, m, space)
}

func TestQuit(t *testing.T) {
	m := newModel(session.New())
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("Expected a command from q")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected q to quit")
	}
}

func TestSliderFollowsSession(t *testing.T) {
	sess := session.New(session.WithIsoValue(1e-4))
	if m := newModel(sess); m.exponent != -4 {
		t.Errorf("Expected the slider at -4, got %d", m.exponent)
	}
}
