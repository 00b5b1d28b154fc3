package nnet

import (
	"math"
	"math/rand"
	"testing"
)

func xorData() Data {
	return NewData([]string{"0", "1"}, []int{2},
		[]int32{0, 1, 1, 0},
		[]float32{0, 0, 0, 1, 1, 0, 1, 1})
}

func xorConfig() Config {
	return Config{
		Eta:        0.05,
		Solver:     "adam",
		MaxEpoch:   2000,
		MinLoss:    0.05,
		TrainBatch: 4,
		TestBatch:  4,
		WeightInit: GlorotUniform,
	}.AddLayers(
		Linear{Nout: 16},
		Activation{Atype: "tanh"},
		Linear{Nout: 2},
		Activation{Atype: "softmax"},
	)
}

func TestNetworkBuild(t *testing.T) {
	conf := xorConfig()
	rng := rand.New(rand.NewSource(42))
	net, err := New(conf, 4, []int{2}, 2, true, rng)
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close()
	t.Log(net)
	if len(net.Layers) != 4 {
		t.Errorf("expected 4 layers, got %d", len(net.Layers))
	}
	if _, ok := net.OutLayer().(*activation); !ok {
		t.Error("expected activation output layer")
	}
	// error cases
	if _, err = New(Config{}, 4, []int{2}, 2, true, rng); err == nil {
		t.Error("expected error for empty layer list")
	}
	bad := conf
	bad.Solver = "bogus"
	if _, err = New(bad, 4, []int{2}, 2, true, rng); err == nil {
		t.Error("expected error for invalid solver")
	}
	for _, layers := range [][]ConfigLayer{
		{Linear{Nout: 3}, Activation{Atype: "softmax"}},
		{Linear{Nout: 2}},
		{Linear{Nout: 2}, Activation{Atype: "wavy"}},
	} {
		bad = conf
		bad.Layers = nil
		bad = bad.AddLayers(layers...)
		if _, err = New(bad, 4, []int{2}, 2, true, rng); err == nil {
			t.Errorf("expected error building %v", bad.Layers)
		}
	}
}

func TestInitWeights(t *testing.T) {
	conf := xorConfig()
	net, err := New(conf, 4, []int{2}, 2, false, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close()
	net2, err := New(conf, 4, []int{2}, 2, false, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	defer net2.Close()
	p1, p2 := net.ExportParams(), net2.ExportParams()
	if len(p1) != 2 || len(p2) != 2 {
		t.Fatalf("expected params for 2 layers, got %d and %d", len(p1), len(p2))
	}
	for i := range p1 {
		for j := range p1[i].W {
			if p1[i].W[j] != p2[i].W[j] {
				t.Fatalf("layer %d: same seed should give same weights", p1[i].Layer)
			}
		}
	}
	// reinitialise from the advanced rng state
	if err = net.InitWeights(); err != nil {
		t.Fatal(err)
	}
	p3 := net.ExportParams()
	same := true
	for j := range p1[0].W {
		if p1[0].W[j] != p3[0].W[j] {
			same = false
		}
	}
	if same {
		t.Error("expected new weights after reinit")
	}
}

func TestCopyWeights(t *testing.T) {
	conf := xorConfig()
	data := xorData()
	rng := rand.New(rand.NewSource(99))
	net, err := New(conf, 4, data.Shape(), 2, true, rng)
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close()
	net2, err := New(conf, 4, data.Shape(), 2, false, rng)
	if err != nil {
		t.Fatal(err)
	}
	defer net2.Close()
	if err = net.CopyWeightsTo(net2); err != nil {
		t.Fatal(err)
	}
	p1, p2 := net.ExportParams(), net2.ExportParams()
	for i := range p1 {
		for j := range p1[i].W {
			if p1[i].W[j] != p2[i].W[j] {
				t.Fatalf("layer %d: weights differ after copy", p1[i].Layer)
			}
		}
		for j := range p1[i].B {
			if p1[i].B[j] != p2[i].B[j] {
				t.Fatalf("layer %d: bias differs after copy", p1[i].Layer)
			}
		}
	}
	// both networks should give the same predictions
	dset := NewDataset(data, 4, 0, rng)
	dset.Rewind()
	x, y, _ := dset.NextBatch()
	c1, c2 := make([]int32, 4), make([]int32, 4)
	if err = net.Predict(x, y, c1); err != nil {
		t.Fatal(err)
	}
	if err = net2.Predict(x, y, c2); err != nil {
		t.Fatal(err)
	}
	for i := range c1 {
		if c1[i] != c2[i] {
			t.Errorf("sample %d: predictions differ: %d vs %d", i, c1[i], c2[i])
		}
	}
	dset.Wait()
}

func TestXOR(t *testing.T) {
	conf := xorConfig()
	data := xorData()
	rng := rand.New(rand.NewSource(42))
	net, err := New(conf, conf.TrainBatch, data.Shape(), len(data.Classes()), true, rng)
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close()
	dset := NewDataset(data, conf.TrainBatch, 0, rng)
	test, err := NewTestBase().Init(conf, map[string]Data{"train": data}, rng)
	if err != nil {
		t.Fatal(err)
	}
	defer test.Net.Close()
	if err = Train(net, dset, test); err != nil {
		t.Fatal(err)
	}
	s := test.Stats[len(test.Stats)-1]
	t.Logf("epoch %3d: loss=%.4f error=%.f%%", s.Epoch, s.Values[0], s.Values[1]*100)
	if math.IsNaN(s.Values[0]) {
		t.Fatal("loss is NaN")
	}
	if s.Epoch >= conf.MaxEpoch {
		t.Errorf("failed to reach %g loss after %d epochs", conf.MinLoss, s.Epoch)
	}
	if s.Values[1] != 0 {
		t.Errorf("expected 0%% training error, got %.f%%", s.Values[1]*100)
	}
	dset.Wait()
}
