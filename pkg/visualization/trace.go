package visualization

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveTrace plots metric values per iteration to an image file. The format
// follows the extension of path (.png, .svg, .pdf, ...).
func SaveTrace(history []float64, path string) error {
	if len(history) == 0 {
		return fmt.Errorf("no metric values to plot")
	}

	pts := make(plotter.XYs, len(history))
	for i, v := range history {
		pts[i].X = float64(i)
		pts[i].Y = v
	}

	p := plot.New()
	p.Title.Text = "Registration metric"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Negated Mattes mutual information"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("building trace line: %w", err)
	}
	p.Add(line)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving trace plot: %w", err)
	}
	return nil
}
