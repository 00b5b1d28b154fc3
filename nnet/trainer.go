package nnet

import (
	"fmt"
	"math/rand"
	"time"

	"digitgraph/stats"

	"github.com/pkg/errors"
)

// size of the moving average window for the validation error
const emaN = 10

// Training statistics for one epoch
type Stats struct {
	Epoch     int
	Values    []float64
	BestSince int
	Elapsed   time.Duration
}

func StatsHeaders(d map[string]Data) []string {
	h := []string{"loss"}
	for _, key := range DataTypes {
		if _, ok := d[key]; ok {
			h = append(h, key+" error")
			if key == "valid" {
				h = append(h, "valid avg")
			}
		}
	}
	return h
}

func (s Stats) Format() []string {
	str := []string{fmt.Sprintf("%7.4f", s.Values[0])}
	for _, v := range s.Values[1:] {
		str = append(str, fmt.Sprintf("%6.2f%%", v*100))
	}
	return str
}

func (s Stats) FormatElapsed() string {
	return s.Elapsed.Round(10 * time.Millisecond).String()
}

// Tester interface to evaluate the performance after each epoch, Test method returns true if training should stop.
type Tester interface {
	Test(net *Network, epoch int, loss float64, start time.Time) (bool, error)
}

// Tester which evaluates the loss and error for each of the data sets and updates the stats.
type TestBase struct {
	Net     *Network
	Data    map[string]*Dataset
	Pred    map[string][]int32
	Stats   []Stats
	Headers []string
	Samples int
}

// Create a new base class which implements the Tester interface.
func NewTestBase() *TestBase {
	return &TestBase{Stats: []Stats{}}
}

// Initialise the test datasets and the network used for evaluation.
func (t *TestBase) Init(conf Config, data map[string]Data, rng *rand.Rand) (*TestBase, error) {
	t.Data = make(map[string]*Dataset)
	t.Headers = StatsHeaders(data)
	t.Samples = data["train"].Len()
	if conf.MaxSamples > 0 && t.Samples > conf.MaxSamples {
		t.Samples = conf.MaxSamples
	}
	t.Pred = nil
	if conf.DebugLevel >= 1 {
		fmt.Printf("init tester: samples=%d batch size=%d\n", t.Samples, conf.TestBatch)
	}
	for key, d := range data {
		t.Data[key] = NewDataset(d, conf.TestBatch, t.Samples, rng)
	}
	var err error
	dset := t.Data["train"]
	t.Net, err = New(conf, dset.BatchSize, dset.Shape(), len(dset.Classes()), false, rng)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Generate the predicted results when test is next run.
func (t *TestBase) Predict() *TestBase {
	t.Pred = make(map[string][]int32)
	for key, dset := range t.Data {
		t.Pred[key] = make([]int32, dset.Samples)
	}
	return t
}

// Reset stats prior to new run
func (t *TestBase) Reset() {
	t.Stats = t.Stats[:0]
}

// Test performance of the network, called from the Train function on completion of each epoch.
func (t *TestBase) Test(net *Network, epoch int, loss float64, start time.Time) (bool, error) {
	if err := net.CopyWeightsTo(t.Net); err != nil {
		return false, err
	}
	s := Stats{Epoch: epoch, Values: []float64{loss}, BestSince: -1}
	for _, key := range DataTypes {
		dset, ok := t.Data[key]
		if !ok {
			continue
		}
		if dset.Samples < dset.Len() {
			dset.Shuffle()
		}
		var pred []int32
		if t.Pred != nil {
			pred = t.Pred[key]
		}
		errVal, err := t.Net.Error(dset, pred)
		if err != nil {
			return false, err
		}
		s.Values = append(s.Values, errVal)
		if key == "valid" {
			// moving average of the validation error with epochs since it last improved
			ix := len(s.Values)
			avgVal := 0.0
			if epoch > 1 {
				avgVal = t.Stats[epoch-2].Values[ix]
			}
			avgVal = stats.EMA(avgVal).Add(errVal, emaN)
			s.Values = append(s.Values, avgVal)
			best := avgVal
			s.BestSince = 0
			for ep := epoch - 1; ep >= 1; ep-- {
				if prev := t.Stats[ep-1].Values[ix]; prev < best {
					best = prev
					s.BestSince = epoch - ep
				}
			}
		}
	}
	s.Elapsed = time.Since(start)
	t.Stats = append(t.Stats, s)
	done := epoch >= net.MaxEpoch || loss <= net.MinLoss ||
		(net.StopAfter > 0 && s.BestSince >= net.StopAfter)
	return done, nil
}

// TestLogger writes one line of stats to stdout after each epoch.
type TestLogger struct {
	*TestBase
}

// Create a new tester which logs stats to stdout after each epoch.
func NewTestLogger(conf Config, data map[string]Data, rng *rand.Rand) (*TestLogger, error) {
	base, err := NewTestBase().Init(conf, data, rng)
	if err != nil {
		return nil, err
	}
	return &TestLogger{TestBase: base}, nil
}

func (t *TestLogger) Test(net *Network, epoch int, loss float64, start time.Time) (bool, error) {
	done, err := t.TestBase.Test(net, epoch, loss, start)
	if err != nil {
		return false, err
	}
	s := t.Stats[len(t.Stats)-1]
	if done || net.LogEvery == 0 || epoch%net.LogEvery == 0 {
		msg := fmt.Sprintf("epoch %3d:", epoch)
		for i, val := range s.Format() {
			msg += fmt.Sprintf("  %s =%s", t.Headers[i], val)
		}
		if s.BestSince > 0 {
			msg += fmt.Sprintf(" [%d]", s.BestSince)
		}
		fmt.Println(msg)
	}
	if done {
		fmt.Printf("run time: %s\n", s.Elapsed.Round(10*time.Millisecond))
	}
	return done, nil
}

// Train the network on the given training set by updating the weights
func Train(net *Network, dset *Dataset, test Tester) error {
	if net.solver == nil {
		net.initSolver(dset.Samples)
	}
	done := false
	start := time.Now()
	for epoch := 1; epoch <= net.MaxEpoch && !done; epoch++ {
		loss, err := TrainEpoch(net, dset)
		if err != nil {
			return err
		}
		if done, err = test.Test(net, epoch, loss, start); err != nil {
			return err
		}
	}
	return nil
}

// Perform one training epoch on the dataset, returns the average loss prior to updating the weights.
func TrainEpoch(net *Network, dset *Dataset) (float64, error) {
	if net.solver == nil {
		net.initSolver(dset.Samples)
	}
	if net.Shuffle {
		dset.Shuffle()
	}
	dset.NextEpoch()
	loss := 0.0
	for batch := 0; batch < dset.Batches; batch++ {
		x, y, _ := dset.NextBatch()
		batchLoss, err := net.TrainBatch(x, y)
		if err != nil {
			return 0, errors.Wrapf(err, "train batch %d", batch)
		}
		if net.DebugLevel >= 2 || (net.DebugLevel == 1 && batch == 0) {
			fmt.Printf("== train batch %d == loss=%f\n", batch, batchLoss)
		}
		loss += batchLoss
	}
	return loss / float64(dset.Batches), nil
}
