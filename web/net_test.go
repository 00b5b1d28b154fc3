package web

import (
	"strings"
	"testing"
	"time"

	"digitgraph/nnet"
)

func TestRunConfig(t *testing.T) {
	conf := nnet.Config{Eta: 0.1, Lambda: 3, TrainBatch: 10, TrainRuns: 1}
	params := []TuneParams{
		{Name: "Eta", Values: []string{"0.1", "0.05", "0.02"}},
		{Name: "Lambda", Values: []string{"3", "5"}},
		{Name: "TrainBatch", Values: []string{"10", "20"}},
	}
	list := getRunConfig(conf, params)
	t.Log("runs =", len(list))
	if len(list) != 12 {
		t.Errorf("expected 12 runs got %d", len(list))
	}
	conf.TrainRuns = 2
	list = getRunConfig(conf, params)
	if len(list) != 24 {
		t.Errorf("expected 24 runs got %d", len(list))
	}
	// each case should be distinct
	seen := map[string]int{}
	for _, c := range list[:12] {
		key := tuneParams(HistoryData{Conf: c})
		seen[key]++
	}
	if len(seen) != 12 {
		t.Errorf("expected 12 distinct cases got %d", len(seen))
	}
}

func TestWritePlot(t *testing.T) {
	list := []nnet.Stats{
		{Epoch: 1, Values: []float64{0.9, 0.12}, Elapsed: time.Second},
		{Epoch: 2, Values: []float64{0.5, 0.08}, Elapsed: 2 * time.Second},
		{Epoch: 3, Values: []float64{0.3, 0.05}, Elapsed: 3 * time.Second},
	}
	plt := newPlot()
	line := newLinePlot(list, 0, 1, 0)
	plt.Add(line)
	plt.Legend.Add("training loss ", line)
	svg := string(writePlot(plt, 560, 380))
	if !strings.Contains(svg, "<svg") {
		t.Errorf("expected svg output, got %.40q", svg)
	}
	xmin, xmax, ymin, ymax := line.DataRange()
	if xmin != 1 || xmax != 3 || ymin != 0 || ymax != 0.9 {
		t.Errorf("unexpected data range: %v %v %v %v", xmin, xmax, ymin, ymax)
	}
}

func TestTuneParams(t *testing.T) {
	conf := nnet.Config{Eta: 0.05, Lambda: 5, TrainBatch: 20}
	s := tuneParams(HistoryData{Conf: conf})
	expect := "&eta;=0.05 &lambda;=5 batch=20"
	if s != expect {
		t.Errorf("got %q expect %q", s, expect)
	}
}
