// Package nnet contains routines for constructing, training and testing neural networks.
//
// Models are defined as a stack of layers which is compiled to a gorgonia
// compute graph with a fixed batch size. Training runs the graph forward,
// computes the parameter gradients with automatic differentiation and applies
// the updates with one of the gorgonia solvers.
package nnet

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network type represents a multilayer neural network model.
type Network struct {
	Config
	Layers     []Layer
	BatchSize  int
	InShape    []int
	classes    int
	training   bool
	graph      *gorgonia.ExprGraph
	x, y       *gorgonia.Node
	cost       *gorgonia.Node
	costVal    gorgonia.Value
	predVal    gorgonia.Value
	learnables gorgonia.Nodes
	solver     gorgonia.Solver
	vm         gorgonia.VM
	rng        *rand.Rand
}

// New function creates a new network with the given layers and initialises the weights.
// Input x is fixed at (batchSize, nfeat) and target y at (batchSize, classes).
// If training is set then gradient nodes are added to the graph and weight
// updates are enabled, else the network can only be used for prediction.
func New(conf Config, batchSize int, inShape []int, classes int, training bool, rng *rand.Rand) (*Network, error) {
	if len(conf.Layers) == 0 {
		return nil, errors.New("no layers defined in config")
	}
	switch conf.Solver {
	case "", "sgd", "adam", "rmsprop":
	default:
		return nil, errors.Errorf("invalid solver type: %s", conf.Solver)
	}
	n := &Network{
		Config:    conf,
		BatchSize: batchSize,
		InShape:   inShape,
		classes:   classes,
		training:  training,
		graph:     gorgonia.NewGraph(),
		rng:       rng,
	}
	nfeat := Prod(inShape)
	n.x = gorgonia.NewMatrix(n.graph, tensor.Float32, gorgonia.WithShape(batchSize, nfeat), gorgonia.WithName("x"))
	n.y = gorgonia.NewMatrix(n.graph, tensor.Float32, gorgonia.WithShape(batchSize, classes), gorgonia.WithName("y"))
	out := n.x
	var err error
	for i, l := range conf.Layers {
		layer := l.Unmarshal()
		if out, err = layer.Build(n, i, out); err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		n.Layers = append(n.Layers, layer)
	}
	if s := out.Shape(); s[0] != batchSize || s[1] != classes {
		return nil, errors.Errorf("output shape %v does not match %d classes", s, classes)
	}
	outLayer, ok := n.Layers[len(n.Layers)-1].(OutputLayer)
	if !ok {
		return nil, errors.New("last layer must be an output layer")
	}
	gorgonia.Read(out, &n.predVal)
	if n.cost, err = outLayer.Loss(n.y, out); err != nil {
		return nil, err
	}
	gorgonia.Read(n.cost, &n.costVal)
	if training {
		if _, err = gorgonia.Grad(n.cost, n.learnables...); err != nil {
			return nil, err
		}
		n.vm = gorgonia.NewTapeMachine(n.graph, gorgonia.BindDualValues(n.learnables...))
	} else {
		n.vm = gorgonia.NewTapeMachine(n.graph)
	}
	return n, nil
}

// Solver to update the weights from the gradients. The weight decay on each
// update is eta*lambda/samples so that lambda is scaled relative to one epoch.
func (n *Network) initSolver(samples int) {
	opts := []gorgonia.SolverOpt{gorgonia.WithLearnRate(n.Eta)}
	if n.Lambda > 0 {
		opts = append(opts, gorgonia.WithL2Reg(n.Lambda/float64(samples)))
	}
	switch n.Solver {
	case "", "sgd":
		n.solver = gorgonia.NewVanillaSolver(opts...)
	case "adam":
		n.solver = gorgonia.NewAdamSolver(opts...)
	case "rmsprop":
		n.solver = gorgonia.NewRMSPropSolver(opts...)
	}
}

// Initialise network weights using the configured distribution.
func (n *Network) InitWeights() error {
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			if err := l.InitParams(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Copy weights and bias values to the destination network which shares the same layer config.
func (n *Network) CopyWeightsTo(net *Network) error {
	for i, layer := range n.Layers {
		l, ok := layer.(ParamLayer)
		if !ok {
			continue
		}
		dst, ok := net.Layers[i].(ParamLayer)
		if !ok {
			return errors.Errorf("copy weights: layer %d mismatch", i)
		}
		W, B := l.Params()
		W2, B2 := dst.Params()
		if err := gorgonia.Let(W2, W.Value().(*tensor.Dense).Clone().(*tensor.Dense)); err != nil {
			return err
		}
		if err := gorgonia.Let(B2, B.Value().(*tensor.Dense).Clone().(*tensor.Dense)); err != nil {
			return err
		}
	}
	return nil
}

// Accessor for output layer
func (n *Network) OutLayer() OutputLayer {
	return n.Layers[len(n.Layers)-1].(OutputLayer)
}

// TrainBatch runs one forward and backward pass on a batch of input x with one
// hot encoded target y, steps the solver and returns the loss prior to the update.
func (n *Network) TrainBatch(x, y *tensor.Dense) (float64, error) {
	if !n.training {
		return 0, errors.New("network was not built for training")
	}
	if err := gorgonia.Let(n.x, x); err != nil {
		return 0, err
	}
	if err := gorgonia.Let(n.y, y); err != nil {
		return 0, err
	}
	defer n.vm.Reset()
	if err := n.vm.RunAll(); err != nil {
		return 0, err
	}
	if err := n.solver.Step(gorgonia.NodesToValueGrads(n.learnables)); err != nil {
		return 0, err
	}
	return n.Loss(), nil
}

// Loss returns the cost value from the last pass through the network.
func (n *Network) Loss() float64 {
	if n.costVal == nil {
		return 0
	}
	return float64(n.costVal.Data().(float32))
}

// Feed forward the input to get the predicted output. Targets y are bound as
// well since the loss node is part of the graph.
func (n *Network) Fprop(x, y *tensor.Dense) (*tensor.Dense, error) {
	if err := gorgonia.Let(n.x, x); err != nil {
		return nil, err
	}
	if err := gorgonia.Let(n.y, y); err != nil {
		return nil, err
	}
	defer n.vm.Reset()
	if err := n.vm.RunAll(); err != nil {
		return nil, err
	}
	return n.predVal.(*tensor.Dense), nil
}

// Predict the most likely class for each sample in the batch.
func (n *Network) Predict(x, y *tensor.Dense, classes []int32) error {
	pred, err := n.Fprop(x, y)
	if err != nil {
		return err
	}
	data := pred.Data().([]float32)
	for i := range classes {
		classes[i] = argmax(data[i*n.classes : (i+1)*n.classes])
	}
	return nil
}

// Calculate the classification error from the predicted versus actual values.
// If pred slice is not nil then it is filled with the predicted classes.
func (n *Network) Error(dset *Dataset, pred []int32) (float64, error) {
	classes := make([]int32, n.BatchSize)
	count := 0
	dset.Rewind()
	for batch := 0; batch < dset.Batches; batch++ {
		x, y, labels := dset.NextBatch()
		if err := n.Predict(x, y, classes); err != nil {
			return 0, err
		}
		rows := dset.BatchRows(batch)
		for i := 0; i < rows; i++ {
			if classes[i] != labels[i] {
				count++
			}
			if pred != nil {
				pred[batch*dset.BatchSize+i] = classes[i]
			}
		}
	}
	return float64(count) / float64(dset.Samples), nil
}

// LayerData holds the weight values for one layer, used for checkpoint files.
type LayerData struct {
	Layer int
	W, B  []float32
}

// ExportParams copies the weight values from each layer.
func (n *Network) ExportParams() []LayerData {
	var params []LayerData
	for i, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			params = append(params, LayerData{
				Layer: i,
				W:     append([]float32{}, W.Value().Data().([]float32)...),
				B:     append([]float32{}, B.Value().Data().([]float32)...),
			})
		}
	}
	return params
}

// ImportParams restores the layer weights, checking each entry matches the model shape.
func (n *Network) ImportParams(params []LayerData) error {
	for _, p := range params {
		if p.Layer < 0 || p.Layer >= len(n.Layers) {
			return errors.Errorf("import params: no layer %d", p.Layer)
		}
		l, ok := n.Layers[p.Layer].(ParamLayer)
		if !ok {
			return errors.Errorf("import params: layer %d has no parameters", p.Layer)
		}
		W, B := l.Params()
		wShape, bShape := W.Shape(), B.Shape()
		if len(p.W) != wShape.TotalSize() || len(p.B) != bShape.TotalSize() {
			return errors.Errorf("import params: layer %d shape mismatch", p.Layer)
		}
		wVal := tensor.New(tensor.WithShape(wShape...), tensor.WithBacking(append([]float32{}, p.W...)))
		if err := gorgonia.Let(W, wVal); err != nil {
			return err
		}
		bVal := tensor.New(tensor.WithShape(bShape...), tensor.WithBacking(append([]float32{}, p.B...)))
		if err := gorgonia.Let(B, bVal); err != nil {
			return err
		}
	}
	return nil
}

// Print network description
func (n *Network) String() string {
	s := make([]string, len(n.Layers))
	shape := []int{n.BatchSize, Prod(n.InShape)}
	for i, layer := range n.Layers {
		shape = layer.OutShape(shape)
		s[i] = fmt.Sprintf("%2d: %-25s %v", i, layer.ToString(), shape)
	}
	return fmt.Sprintf("%s\n== Network ==\n%s", n.configString(), strings.Join(s, "\n"))
}

// Print network weights
func (n *Network) PrintWeights() {
	for i, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			fmt.Printf("== Layer %d weights ==\n%v %v\n", i, W.Value(), B.Value())
		}
	}
}

// Release the virtual machine resources
func (n *Network) Close() {
	if n.vm != nil {
		n.vm.Close()
	}
}

func argmax(scores []float32) int32 {
	best := 0
	for i, val := range scores {
		if val > scores[best] {
			best = i
		}
	}
	return int32(best)
}

// Product of elements of the array
func Prod(arr []int) int {
	prod := 1
	for _, d := range arr {
		prod *= d
	}
	return prod
}

// Set random number seed, or use the current time if seed <= 0
func SetSeed(seed int64) *rand.Rand {
	if seed <= 0 {
		seed = time.Now().UTC().UnixNano()
	}
	fmt.Println("random seed =", seed)
	return rand.New(rand.NewSource(seed))
}

// Exit in case of error
func CheckErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
