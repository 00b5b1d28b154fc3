// Package stats has running statistics used to track training progress.
package stats

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Calc exponentional moving average over a window of n values
type EMA float64

func (e EMA) Add(val, n float64) float64 {
	if e == 0 {
		return val
	}
	k := 2.0 / (n + 1.0)
	return val*k + float64(e)*(1-k)
}

// Running mean and stddev as per http://www.johndcook.com/blog/standard_deviation/
type Average struct {
	Count, Mean float64
	Var, StdDev float64
	oldM, oldV  float64
}

func (s *Average) Add(x float64) {
	s.Count++
	if s.Count == 1 {
		s.oldM, s.Mean = x, x
		s.oldV = 0
	} else {
		s.Mean = s.oldM + (x-s.oldM)/s.Count
		s.Var = s.oldV + (x-s.oldM)*(x-s.Mean)
		s.oldM, s.oldV = s.Mean, s.Var
		if s.Count > 1 {
			s.StdDev = math.Sqrt(s.Var / (s.Count - 1))
		}
	}
}

func (s *Average) String() string {
	if s.StdDev < 0.005 {
		return fmt.Sprintf("%.2f", s.Mean)
	}
	return fmt.Sprintf("%.2f +/- %.2f", s.Mean, s.StdDev)
}

func (s *Average) HTML() template.HTML {
	var text string
	if s.Mean > 10 {
		if s.StdDev < 0.1 {
			text = fmt.Sprintf("%.1f", s.Mean)
		} else {
			text = fmt.Sprintf("%.1f&PlusMinus;%.1f", s.Mean, s.StdDev)
		}
	} else {
		if s.StdDev < 0.01 {
			text = fmt.Sprintf("%.2f", s.Mean)
		} else {
			text = fmt.Sprintf("%.2f&PlusMinus;%.2f", s.Mean, s.StdDev)
		}
	}
	return template.HTML(text)
}

// Confusion matrix tallies predicted against actual classes.
type Confusion struct {
	Classes []string
	counts  [][]int
}

func NewConfusion(classes []string) *Confusion {
	c := &Confusion{Classes: classes, counts: make([][]int, len(classes))}
	for i := range c.counts {
		c.counts[i] = make([]int, len(classes))
	}
	return c
}

// Add one observation: actual class a, predicted class p.
func (c *Confusion) Add(a, p int32) {
	c.counts[a][p]++
}

// Count returns number of times class a was predicted as class p.
func (c *Confusion) Count(a, p int) int {
	return c.counts[a][p]
}

// ClassError gives the error rate for one actual class, or 0 if unseen.
func (c *Confusion) ClassError(a int) float64 {
	total := 0
	for _, n := range c.counts[a] {
		total += n
	}
	if total == 0 {
		return 0
	}
	return 1 - float64(c.counts[a][a])/float64(total)
}

// Error gives the overall error rate across all classes.
func (c *Confusion) Error() float64 {
	total, correct := 0, 0
	for i, row := range c.counts {
		for j, n := range row {
			total += n
			if i == j {
				correct += n
			}
		}
	}
	if total == 0 {
		return 0
	}
	return 1 - float64(correct)/float64(total)
}

// Table formats the matrix with row and column headings.
func (c *Confusion) Table() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%8s", "")
	for _, class := range c.Classes {
		fmt.Fprintf(&b, "%6s", class)
	}
	fmt.Fprintf(&b, "%8s\n", "error")
	for i, class := range c.Classes {
		fmt.Fprintf(&b, "%8s", class)
		for j := range c.Classes {
			fmt.Fprintf(&b, "%6d", c.counts[i][j])
		}
		fmt.Fprintf(&b, "%7.2f%%\n", 100*c.ClassError(i))
	}
	return b.String()
}
