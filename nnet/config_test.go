package nnet

import (
	"encoding/json"
	"strings"
	"testing"
)

func testConfig() Config {
	conf := Config{
		DataSet:    "mnist",
		Eta:        0.1,
		Lambda:     3.0,
		TrainRuns:  1,
		MaxEpoch:   20,
		TrainBatch: 10,
		TestBatch:  100,
		Shuffle:    true,
		WeightInit: LecunNormal,
	}
	return conf.AddLayers(
		Linear{Nout: 100},
		Activation{Atype: "relu"},
		Linear{Nout: 10},
		Activation{Atype: "softmax"},
	)
}

func TestConfigSaveLoad(t *testing.T) {
	DataDir = t.TempDir()
	conf := testConfig()
	t.Log(conf)
	if err := conf.Save("mnist_mlp.net"); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig("mnist_mlp.net")
	if err != nil {
		t.Fatal(err)
	}
	if c.Eta != 0.1 || c.Lambda != 3.0 || c.MaxEpoch != 20 || !c.Shuffle {
		t.Errorf("config mismatch after reload: %v", c)
	}
	if c.WeightInit != LecunNormal {
		t.Errorf("expected LecunNormal weight init, got %s", c.WeightInit)
	}
	if len(c.Layers) != 4 {
		t.Fatalf("expected 4 layers, got %d", len(c.Layers))
	}
	if c.Layers[0].String() != "linear {Nout:100}" {
		t.Errorf("unexpected layer 0: %s", c.Layers[0])
	}
	if c.Layers[3].String() != "activation {Atype:softmax}" {
		t.Errorf("unexpected layer 3: %s", c.Layers[3])
	}
}

func TestConfigFields(t *testing.T) {
	conf := testConfig()
	fields := conf.Fields()
	for _, key := range fields {
		if key == "Layers" {
			t.Error("Fields should not include Layers")
		}
	}
	if val := conf.Get("Eta"); val.(float64) != 0.1 {
		t.Errorf("Get Eta: expected 0.1, got %v", val)
	}
	c, err := conf.SetString("Eta", "0.25")
	if err != nil {
		t.Fatal(err)
	}
	if c.Eta != 0.25 {
		t.Errorf("SetString Eta: expected 0.25, got %v", c.Eta)
	}
	if c, err = conf.SetString("MaxEpoch", "50"); err != nil || c.MaxEpoch != 50 {
		t.Errorf("SetString MaxEpoch: got %v %v", c.MaxEpoch, err)
	}
	if c, err = conf.SetString("WeightInit", "GlorotUniform"); err != nil || c.WeightInit != GlorotUniform {
		t.Errorf("SetString WeightInit: got %v %v", c.WeightInit, err)
	}
	if c, err = conf.SetBool("Distort", true); err != nil || !c.Distort {
		t.Errorf("SetBool Distort: got %v %v", c.Distort, err)
	}
	if _, err = conf.SetBool("Eta", true); err == nil {
		t.Error("expected error from SetBool on float field")
	}
}

func TestInitTypeJSON(t *testing.T) {
	data, err := json.Marshal(GlorotUniform)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"GlorotUniform"` {
		t.Errorf("unexpected init type encoding: %s", data)
	}
	var typ InitType
	if err = json.Unmarshal(data, &typ); err != nil {
		t.Fatal(err)
	}
	if typ != GlorotUniform {
		t.Errorf("expected GlorotUniform, got %s", typ)
	}
	// legacy numeric form
	if err = json.Unmarshal([]byte("2"), &typ); err != nil || typ != LecunNormal {
		t.Errorf("expected LecunNormal, got %s %v", typ, err)
	}
	if err = json.Unmarshal([]byte(`"NoSuchInit"`), &typ); err == nil {
		t.Error("expected error for unknown init type")
	}
}

func TestConfigString(t *testing.T) {
	s := testConfig().String()
	for _, want := range []string{"== Config ==", "== Network ==", "Eta", "linear"} {
		if !strings.Contains(s, want) {
			t.Errorf("config string missing %q:\n%s", want, s)
		}
	}
}
