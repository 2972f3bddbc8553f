package registration

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// convergenceMonitor tracks the trend of the last window metric values.
// Values are normalized by the accumulated absolute energy of every value
// seen, a line is fitted over the window on [0, 1] and the negated slope is
// reported. A metric that stops decreasing reports a value near or below
// zero.
type convergenceMonitor struct {
	window int
	values []float64
	total  float64
}

func newConvergenceMonitor(window int) *convergenceMonitor {
	return &convergenceMonitor{window: window}
}

func (c *convergenceMonitor) add(v float64) {
	c.total += math.Abs(v)
	c.values = append(c.values, v)
	if len(c.values) > c.window {
		c.values = c.values[len(c.values)-c.window:]
	}
}

// value returns the convergence value, or +Inf until the window is full.
func (c *convergenceMonitor) value() float64 {
	if len(c.values) < c.window || c.window < 2 || c.total == 0 {
		return math.Inf(1)
	}
	xs := make([]float64, c.window)
	ys := make([]float64, c.window)
	for i, v := range c.values {
		xs[i] = float64(i) / float64(c.window-1)
		ys[i] = v / c.total
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return -slope
}
