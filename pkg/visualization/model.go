package visualization

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultWidth  = 80
	defaultHeight = 24

	// chromeLines is the number of lines around the image: title, legend
	// (one per layer, up to three), help and status.
	chromeLines = 6
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AF87FF"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
	hiddenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#585858"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F"))

	swatchColors = map[Colormap]lipgloss.Color{
		Gray:    lipgloss.Color("#D0D0D0"),
		Magenta: lipgloss.Color("#FF00FF"),
		Green:   lipgloss.Color("#00FF00"),
	}
)

// Options configures the viewer.
type Options struct {
	// SnapshotDir receives JPEG snapshots of the current slice
	SnapshotDir string

	// InitialAxis is the axis shown first; the zero value is AxisZ
	InitialAxis Axis
}

// Model is the bubbletea model of the slice viewer. It renders one plane
// of the layer stack as half-block characters, two image rows per line,
// preserving the physical aspect ratio of the voxels.
type Model struct {
	layers  []*Layer
	visible []bool

	keys KeyMap
	help help.Model

	axis     Axis
	position [3]int

	showHelp bool
	width    int
	height   int

	snapshotDir string
	status      string
}

// NewModel creates a viewer model showing the middle slice along
// opts.InitialAxis.
func NewModel(layers []*Layer, opts Options) Model {
	m := Model{
		layers:      layers,
		visible:     make([]bool, len(layers)),
		keys:        DefaultKeyMap(),
		help:        help.New(),
		axis:        opts.InitialAxis,
		width:       defaultWidth,
		height:      defaultHeight,
		snapshotDir: opts.SnapshotDir,
	}
	for i, l := range layers {
		m.visible[i] = l.Visible
	}
	if len(layers) > 0 {
		vol := layers[0].Volume
		for _, a := range []Axis{AxisZ, AxisY, AxisX} {
			m.position[a] = Depth(vol, a) / 2
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		m.status = ""
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.NextSlice):
			m.step(1)
		case key.Matches(msg, m.keys.PrevSlice):
			m.step(-1)
		case key.Matches(msg, m.keys.NextAxis):
			m.axis = m.axis.Next()
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			m.help.ShowAll = m.showHelp
		case key.Matches(msg, m.keys.Snapshot):
			m.status = m.snapshot()
		default:
			for i, b := range m.keys.toggles() {
				if key.Matches(msg, b) && i < len(m.visible) {
					visible := append([]bool(nil), m.visible...)
					visible[i] = !visible[i]
					m.visible = visible
				}
			}
		}
	}
	return m, nil
}

func (m *Model) step(delta int) {
	if len(m.layers) == 0 {
		return
	}
	n := Depth(m.layers[0].Volume, m.axis)
	p := m.position[m.axis] + delta
	if p < 0 {
		p = 0
	}
	if p > n-1 {
		p = n - 1
	}
	m.position[m.axis] = p
}

// Axis returns the axis the displayed plane is perpendicular to.
func (m Model) Axis() Axis {
	return m.axis
}

// Position returns the displayed slice index along the current axis.
func (m Model) Position() int {
	return m.position[m.axis]
}

// Visible reports whether layer i is shown.
func (m Model) Visible(i int) bool {
	return i >= 0 && i < len(m.visible) && m.visible[i]
}

// ShowHelp reports whether the full help is shown.
func (m Model) ShowHelp() bool {
	return m.showHelp
}

// displayLayers returns shallow copies of the layers carrying the model's
// visibility.
func (m Model) displayLayers() []*Layer {
	out := make([]*Layer, len(m.layers))
	for i, l := range m.layers {
		c := *l
		c.Visible = m.visible[i]
		out[i] = &c
	}
	return out
}

func (m Model) snapshot() string {
	img, err := Composite(m.displayLayers(), m.axis, m.Position())
	if err != nil {
		return fmt.Sprintf("snapshot failed: %v", err)
	}
	name := filepath.Join(m.snapshotDir, fmt.Sprintf("slice_%s_%03d.jpg", strings.ToLower(m.axis.String()), m.Position()))
	if err := SaveSnapshot(img, name); err != nil {
		return fmt.Sprintf("snapshot failed: %v", err)
	}
	return "saved " + name
}

// View implements tea.Model.
func (m Model) View() string {
	if len(m.layers) == 0 {
		return "no layers\n"
	}

	vol := m.layers[0].Volume
	plane := PlaneOf(vol, m.axis)
	n := Depth(vol, m.axis)
	pos := m.Position()
	physical := float64(pos) * vol.Spacing.ZYX()[m.axis]

	var b strings.Builder
	b.WriteString(titleStyle.Render("zarrfusion"))
	b.WriteString(infoStyle.Render(fmt.Sprintf("  axis %s  slice %d/%d  (%.2f)", m.axis, pos+1, n, physical)))
	b.WriteString("\n")

	helpView := m.help.View(m.keys)
	rows := m.height - chromeLines - strings.Count(helpView, "\n")
	if rows < 1 {
		rows = 1
	}
	cols, pixRows := fitPlane(plane, m.width, 2*rows)

	img, err := Composite(m.displayLayers(), m.axis, pos)
	if err != nil {
		b.WriteString(err.Error())
		b.WriteString("\n")
	} else {
		b.WriteString(renderHalfBlocks(img, cols, pixRows))
	}

	for i, l := range m.layers {
		swatch := lipgloss.NewStyle().Foreground(swatchColors[l.Colormap]).Render("■")
		label := fmt.Sprintf("[%d] %s %s (%s)", i+1, swatch, l.Name, l.Colormap)
		if !m.visible[i] {
			label = hiddenStyle.Render(fmt.Sprintf("[%d] %s (%s) hidden", i+1, l.Name, l.Colormap))
		}
		b.WriteString(label)
		b.WriteString("\n")
	}

	b.WriteString(helpView)
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	return b.String()
}

// fitPlane returns the largest image size within maxCols x maxRows pixels
// that keeps the plane's physical aspect ratio.
func fitPlane(p Plane, maxCols, maxRows int) (cols, rows int) {
	w := float64(p.Cols) * p.ColSpacing
	h := float64(p.Rows) * p.RowSpacing
	if maxCols < 1 {
		maxCols = 1
	}
	if maxRows < 1 {
		maxRows = 1
	}
	s := float64(maxCols) / w
	if hs := float64(maxRows) / h; hs < s {
		s = hs
	}
	cols = int(w * s)
	rows = int(h * s)
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

// renderHalfBlocks draws img scaled to cols x rows pixels with nearest
// neighbour sampling. Each line carries two pixel rows: the upper one as
// the foreground of "▀" and the lower one as its background.
func renderHalfBlocks(img *image.RGBA, cols, rows int) string {
	bounds := img.Bounds()
	at := func(c, r int) lipgloss.Color {
		x := c * bounds.Dx() / cols
		y := r * bounds.Dy() / rows
		px := img.RGBAAt(x, y)
		return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", px.R, px.G, px.B))
	}

	var b strings.Builder
	for r := 0; r < rows; r += 2 {
		for c := 0; c < cols; c++ {
			style := lipgloss.NewStyle().Foreground(at(c, r))
			if r+1 < rows {
				style = style.Background(at(c, r+1))
			}
			b.WriteString(style.Render("▀"))
		}
		b.WriteString("\n")
	}
	return b.String()
}
