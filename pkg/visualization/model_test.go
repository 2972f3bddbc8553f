package visualization

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/require"
)

func testLayers(t *testing.T) []*Layer {
	t.Helper()
	layers, err := FusionLayers(createTestVolume(4, 6, 8), createTestVolume(4, 6, 8), createTestVolume(4, 6, 8))
	require.NoError(t, err)
	return layers
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok, "expected Update to return a Model")
	}
	return m
}

func TestModel_StartsAtMiddleSlice(t *testing.T) {
	m := NewModel(testLayers(t), Options{})

	require.Equal(t, AxisZ, m.Axis())
	require.Equal(t, 2, m.Position())
	require.True(t, m.Visible(0))
	require.True(t, m.Visible(1))
	require.False(t, m.Visible(2))
	require.False(t, m.ShowHelp())
}

func TestModel_InitialAxis(t *testing.T) {
	axis, err := ParseAxis("x")
	require.NoError(t, err)

	m := NewModel(testLayers(t), Options{InitialAxis: axis})
	require.Equal(t, AxisX, m.Axis())
	require.Equal(t, 4, m.Position(), "middle of 8 columns")
	require.Contains(t, m.View(), "axis X")
}

func TestModel_SliceNavigationClamps(t *testing.T) {
	m := NewModel(testLayers(t), Options{})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp}, keyRunes("k"), keyRunes("k"))
	require.Equal(t, 3, m.Position(), "expected position clamped to last slice")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown}, keyRunes("j"), keyRunes("j"), keyRunes("j"), keyRunes("j"))
	require.Equal(t, 0, m.Position(), "expected position clamped to first slice")
}

func TestModel_TabCyclesAxisAndKeepsPositions(t *testing.T) {
	m := NewModel(testLayers(t), Options{})
	m = update(t, m, keyRunes("k"))
	require.Equal(t, 3, m.Position())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, AxisY, m.Axis())
	require.Equal(t, 3, m.Position(), "Y starts at the middle of 6 rows")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, AxisX, m.Axis())
	require.Equal(t, 4, m.Position())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, AxisZ, m.Axis())
	require.Equal(t, 3, m.Position(), "Z keeps its slice")
}

func TestModel_ToggleLayers(t *testing.T) {
	layers := testLayers(t)
	m := NewModel(layers, Options{})

	toggled := update(t, m, keyRunes("1"), keyRunes("3"))
	require.False(t, toggled.Visible(0))
	require.True(t, toggled.Visible(1))
	require.True(t, toggled.Visible(2))

	// The original model and layers are untouched.
	require.True(t, m.Visible(0))
	require.True(t, layers[0].Visible)
	require.False(t, layers[2].Visible)
}

func TestModel_View(t *testing.T) {
	m := update(t, NewModel(testLayers(t), Options{}), tea.WindowSizeMsg{Width: 60, Height: 20})
	view := m.View()

	require.Contains(t, view, "axis Z")
	require.Contains(t, view, "slice 3/4")
	require.Contains(t, view, "View 0 (Subsampled)")
	require.Contains(t, view, "View 1 (Aligned)")
	require.Contains(t, view, "View 1 (Original)")
	require.Contains(t, view, "hidden")
	require.Contains(t, view, "▀")

	for _, line := range strings.Split(view, "\n") {
		require.LessOrEqual(t, lipgloss.Width(line), 60, "line wider than the terminal: %q", line)
	}

	withHelp := update(t, m, keyRunes("?"))
	require.True(t, withHelp.ShowHelp())
	require.Contains(t, withHelp.View(), "toggle original")
}

func TestFitPlane_KeepsPhysicalAspect(t *testing.T) {
	// 10 x 20 voxels of 2 x 1 units is a square.
	cols, rows := fitPlane(Plane{Rows: 10, Cols: 20, RowSpacing: 2, ColSpacing: 1}, 40, 30)
	require.Equal(t, 30, cols)
	require.Equal(t, 30, rows)

	cols, rows = fitPlane(Plane{Rows: 10, Cols: 10, RowSpacing: 1, ColSpacing: 4}, 20, 40)
	require.Equal(t, 20, cols)
	require.Equal(t, 5, rows)
}

func TestModel_Snapshot(t *testing.T) {
	dir := t.TempDir()
	m := update(t, NewModel(testLayers(t), Options{SnapshotDir: dir}), keyRunes("s"))

	_, err := os.Stat(filepath.Join(dir, "slice_z_002.jpg"))
	require.NoError(t, err)
	require.Contains(t, m.View(), "saved")
}

func TestModel_QuitKeys(t *testing.T) {
	for _, msg := range []tea.KeyMsg{keyRunes("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		_, cmd := NewModel(testLayers(t), Options{}).Update(msg)
		require.NotNil(t, cmd, "expected a command for %q", msg.String())
		_, ok := cmd().(tea.QuitMsg)
		require.True(t, ok, "expected quit for %q", msg.String())
	}
}

func TestModel_Program(t *testing.T) {
	tm := teatest.NewTestModel(t, NewModel(testLayers(t), Options{}), teatest.WithInitialTermSize(80, 24))

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("View 1 (Aligned)"))
	}, teatest.WithDuration(3*time.Second))

	tm.Send(keyRunes("k"))
	tm.Send(tea.KeyMsg{Type: tea.KeyTab})
	tm.Send(keyRunes("2"))
	tm.Send(keyRunes("q"))
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))

	final, ok := tm.FinalModel(t).(Model)
	require.True(t, ok)
	require.Equal(t, AxisY, final.Axis())
	require.False(t, final.Visible(1))
}
