package nnet

import (
	"math/rand"
	"testing"
	"time"
)

func TestCheckpoint(t *testing.T) {
	DataDir = t.TempDir()
	conf := xorConfig()
	rng := rand.New(rand.NewSource(3))
	net, err := New(conf, 4, []int{2}, 2, true, rng)
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close()
	stats := []Stats{{Epoch: 1, Values: []float64{0.7, 0.5}, BestSince: -1, Elapsed: time.Second}}
	ckpt := NewCheckpoint("xor", net, stats, 1)
	if err = SaveCheckpoint(ckpt); err != nil {
		t.Fatal(err)
	}
	if !FileExists("xor.ckpt") {
		t.Fatal("checkpoint file not found")
	}
	loaded, err := LoadCheckpoint("xor")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Model != "xor" || loaded.Epoch != 1 || len(loaded.Stats) != 1 {
		t.Errorf("bad checkpoint contents: %s epoch=%d stats=%d", loaded.Model, loaded.Epoch, len(loaded.Stats))
	}
	if loaded.Conf.Eta != conf.Eta || len(loaded.Conf.Layers) != len(conf.Layers) {
		t.Error("config mismatch after reload")
	}
	net2, err := New(loaded.Conf, 4, []int{2}, 2, false, rng)
	if err != nil {
		t.Fatal(err)
	}
	defer net2.Close()
	if err = loaded.Apply(net2); err != nil {
		t.Fatal(err)
	}
	p1, p2 := net.ExportParams(), net2.ExportParams()
	for i := range p1 {
		for j := range p1[i].W {
			if p1[i].W[j] != p2[i].W[j] {
				t.Fatalf("layer %d: weights differ after restore", p1[i].Layer)
			}
		}
		for j := range p1[i].B {
			if p1[i].B[j] != p2[i].B[j] {
				t.Fatalf("layer %d: bias differs after restore", p1[i].Layer)
			}
		}
	}
	// import should reject weights which do not match the model
	bad := []LayerData{{Layer: 1, W: []float32{1}, B: []float32{1}}}
	if err = net2.ImportParams(bad); err == nil {
		t.Error("expected error for layer without parameters")
	}
	bad = []LayerData{{Layer: 0, W: []float32{1}, B: []float32{1}}}
	if err = net2.ImportParams(bad); err == nil {
		t.Error("expected error for weight shape mismatch")
	}
}

func TestCheckpointValidate(t *testing.T) {
	DataDir = t.TempDir()
	c := &Checkpoint{Model: "bad", Conf: xorConfig(), Params: []LayerData{{Layer: 9, W: []float32{1}}}}
	if err := SaveCheckpoint(c); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCheckpoint("bad"); err == nil {
		t.Error("expected validation error for unknown layer")
	}
	if _, err := LoadCheckpoint("missing"); err == nil {
		t.Error("expected error for missing file")
	}
}
