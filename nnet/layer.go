package nnet

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer interface type represents one layer of the neural net.
// Build adds the layer to the network compute graph and returns the output node.
type Layer interface {
	Build(net *Network, ix int, in *gorgonia.Node) (*gorgonia.Node, error)
	OutShape(inShape []int) []int
	ToString() string
}

// ParamLayer is a layer with weight and bias parameters
type ParamLayer interface {
	Layer
	Params() (W, B *gorgonia.Node)
	InitParams(net *Network) error
}

// OutputLayer is the final layer in the stack
type OutputLayer interface {
	Layer
	Loss(y, yPred *gorgonia.Node) (*gorgonia.Node, error)
}

// Layer configuration details
type LayerConfig struct {
	Type string
	Data json.RawMessage
}

type ConfigLayer interface {
	Marshal() LayerConfig
}

// Unmarshal JSON data and construct new layer
func (l LayerConfig) Unmarshal() Layer {
	switch l.Type {
	case "linear":
		cfg := new(Linear)
		return cfg.unmarshal(l.Data)
	case "activation":
		cfg := new(Activation)
		return cfg.unmarshal(l.Data)
	case "dropout":
		cfg := new(Dropout)
		return cfg.unmarshal(l.Data)
	default:
		panic("invalid layer type: " + l.Type)
	}
}

func (l LayerConfig) String() string {
	return l.Unmarshal().ToString()
}

// Linear fully connected layer, implements ParamLayer interface.
type Linear struct {
	Nout int
}

func (c Linear) Marshal() LayerConfig {
	return LayerConfig{Type: "linear", Data: marshal(c)}
}

func (c Linear) ToString() string {
	return fmt.Sprintf("linear %+v", c)
}

func (c *Linear) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &linear{Linear: *c}
}

// Sigmoid, tanh, relu or softmax activation layer, implements OutputLayer interface.
type Activation struct {
	Atype string
}

func (c Activation) Marshal() LayerConfig {
	return LayerConfig{Type: "activation", Data: marshal(c)}
}

func (c Activation) ToString() string {
	return fmt.Sprintf("activation %+v", c)
}

func (c *Activation) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &activation{Activation: *c}
}

// Dropout layer randomly zeroes out a fraction of the inputs during training.
type Dropout struct {
	Ratio float64
}

func (c Dropout) Marshal() LayerConfig {
	return LayerConfig{Type: "dropout", Data: marshal(c)}
}

func (c Dropout) ToString() string {
	return fmt.Sprintf("dropout %+v", c)
}

func (c *Dropout) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &dropout{Dropout: *c}
}

// linear layer implementation
type linear struct {
	Linear
	w, b *gorgonia.Node
	nin  int
}

func (l *linear) OutShape(inShape []int) []int {
	return []int{inShape[0], l.Nout}
}

func (l *linear) Build(net *Network, ix int, in *gorgonia.Node) (*gorgonia.Node, error) {
	l.nin = in.Shape()[1]
	l.w = gorgonia.NewMatrix(net.graph, tensor.Float32,
		gorgonia.WithName(fmt.Sprintf("w%d", ix)),
		gorgonia.WithValue(initWeights(net.rng, net.WeightInit, l.nin, l.Nout)))
	l.b = gorgonia.NewMatrix(net.graph, tensor.Float32,
		gorgonia.WithName(fmt.Sprintf("b%d", ix)),
		gorgonia.WithValue(initBias(net.Bias, l.Nout)))
	net.learnables = append(net.learnables, l.w, l.b)
	out, err := gorgonia.Mul(in, l.w)
	if err != nil {
		return nil, err
	}
	return gorgonia.BroadcastAdd(out, l.b, nil, []byte{0})
}

func (l *linear) Params() (W, B *gorgonia.Node) {
	return l.w, l.b
}

func (l *linear) InitParams(net *Network) error {
	if err := gorgonia.Let(l.w, initWeights(net.rng, net.WeightInit, l.nin, l.Nout)); err != nil {
		return err
	}
	return gorgonia.Let(l.b, initBias(net.Bias, l.Nout))
}

// activation layer implementation
type activation struct {
	Activation
}

func (l *activation) OutShape(inShape []int) []int {
	return inShape
}

func (l *activation) Build(net *Network, ix int, in *gorgonia.Node) (*gorgonia.Node, error) {
	switch l.Atype {
	case "sigmoid":
		return gorgonia.Sigmoid(in)
	case "tanh":
		return gorgonia.Tanh(in)
	case "relu":
		return gorgonia.Rectify(in)
	case "softmax":
		return gorgonia.SoftMax(in)
	}
	return nil, errors.Errorf("activation type %s invalid", l.Atype)
}

// Loss returns mean cross entropy if the output is a softmax, else mean squared error.
func (l *activation) Loss(y, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	if l.Atype == "softmax" {
		logPred, err := gorgonia.Log(yPred)
		if err != nil {
			return nil, err
		}
		prod, err := gorgonia.HadamardProd(y, logPred)
		if err != nil {
			return nil, err
		}
		sum, err := gorgonia.Sum(prod, 1)
		if err != nil {
			return nil, err
		}
		mean, err := gorgonia.Mean(sum)
		if err != nil {
			return nil, err
		}
		return gorgonia.Neg(mean)
	}
	diff, err := gorgonia.Sub(y, yPred)
	if err != nil {
		return nil, err
	}
	sqr, err := gorgonia.Square(diff)
	if err != nil {
		return nil, err
	}
	sum, err := gorgonia.Sum(sqr, 1)
	if err != nil {
		return nil, err
	}
	return gorgonia.Mean(sum)
}

// dropout layer implementation: pass through unless training
type dropout struct {
	Dropout
}

func (l *dropout) OutShape(inShape []int) []int {
	return inShape
}

func (l *dropout) Build(net *Network, ix int, in *gorgonia.Node) (*gorgonia.Node, error) {
	if !net.training || l.Ratio <= 0 {
		return in, nil
	}
	return gorgonia.Dropout(in, l.Ratio)
}

// Weight initialisation scheme
type InitType int

const (
	RandomNormal InitType = iota
	RandomUniform
	LecunNormal
	LecunUniform
	GlorotUniform
	HeNormal
)

var initTypeNames = []string{"RandomNormal", "RandomUniform", "LecunNormal", "LecunUniform", "GlorotUniform", "HeNormal"}

func (t InitType) String() string {
	if t < 0 || int(t) >= len(initTypeNames) {
		return "Unknown"
	}
	return initTypeNames[t]
}

func ParseInitType(s string) (InitType, error) {
	for i, name := range initTypeNames {
		if strings.EqualFold(name, s) {
			return InitType(i), nil
		}
	}
	return 0, errors.Errorf("invalid weight init type: %s", s)
}

func (t InitType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *InitType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		init, err := ParseInitType(s)
		if err != nil {
			return err
		}
		*t = init
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = InitType(n)
	return nil
}

// Weights are drawn from the given distribution, scaled by the fan in
// and fan out where the scheme calls for it.
func initWeights(rng *rand.Rand, typ InitType, nin, nout int) *tensor.Dense {
	weights := make([]float32, nin*nout)
	var scale float64
	switch typ {
	case RandomNormal, RandomUniform:
		scale = 1
	case LecunNormal:
		scale = 1 / math.Sqrt(float64(nin))
	case LecunUniform:
		scale = math.Sqrt(3 / float64(nin))
	case GlorotUniform:
		scale = math.Sqrt(6 / float64(nin+nout))
	case HeNormal:
		scale = math.Sqrt(2 / float64(nin))
	}
	normal := typ == RandomNormal || typ == LecunNormal || typ == HeNormal
	for i := range weights {
		if normal {
			weights[i] = float32(rng.NormFloat64() * scale)
		} else {
			weights[i] = float32((2*rng.Float64() - 1) * scale)
		}
	}
	return tensor.New(tensor.WithShape(nin, nout), tensor.WithBacking(weights))
}

func initBias(val float64, nout int) *tensor.Dense {
	bias := make([]float32, nout)
	if val != 0 {
		for i := range bias {
			bias[i] = float32(val)
		}
	}
	return tensor.New(tensor.WithShape(1, nout), tensor.WithBacking(bias))
}

func marshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func unmarshal(data json.RawMessage, v interface{}) {
	if data == nil {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		panic(err)
	}
}
