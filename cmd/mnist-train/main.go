// Command mnist-train trains a digit classifier from the console and saves a
// checkpoint with the final weights.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path"
	"strings"

	"digitgraph/img"
	"digitgraph/mnist"
	"digitgraph/nnet"

	"github.com/klauspost/cpuid/v2"
)

const numSamples = 10

func main() {
	model := "mnist"
	if n := len(os.Args); n > 1 && !strings.HasPrefix(os.Args[n-1], "-") {
		model = os.Args[n-1]
	}
	err := os.MkdirAll(nnet.DataDir, 0755)
	nnet.CheckErr(err)
	if !nnet.FileExists(model + ".net") {
		err = defaultConfig().SaveDefault(model)
		nnet.CheckErr(err)
	}
	conf, err := nnet.LoadConfig(model + ".net")
	nnet.CheckErr(err)

	// override config settings from command line
	flag.Float64Var(&conf.Eta, "eta", conf.Eta, "learning rate")
	flag.Float64Var(&conf.Lambda, "lambda", conf.Lambda, "weight decay parameter")
	flag.StringVar(&conf.Solver, "solver", conf.Solver, "weight update method: sgd, adam or rmsprop")
	flag.Int64Var(&conf.RandSeed, "seed", conf.RandSeed, "random number seed")
	flag.IntVar(&conf.MaxEpoch, "epochs", conf.MaxEpoch, "max epochs")
	flag.IntVar(&conf.MaxSamples, "samples", conf.MaxSamples, "max samples")
	flag.IntVar(&conf.TrainBatch, "batch", conf.TrainBatch, "train batch size")
	flag.IntVar(&conf.TestBatch, "testbatch", conf.TestBatch, "test batch size")
	flag.IntVar(&conf.DebugLevel, "debug", conf.DebugLevel, "debug logging level")
	flag.BoolVar(&conf.Distort, "distort", conf.Distort, "distort training images")
	flag.BoolVar(&conf.Normalise, "normalise", conf.Normalise, "normalise input values")
	flag.Parse()

	fmt.Printf("cpu: %s  threads=%d avx2=%v\n", cpuid.CPU.BrandName, cpuid.CPU.LogicalCores, cpuid.CPU.Supports(cpuid.AVX2))

	// fetch and decode the data files
	dataDir := path.Join(nnet.DataDir, "mnist")
	err = mnist.Download(dataDir)
	nnet.CheckErr(err)
	train, valid, test, err := mnist.DataSets(dataDir, conf.ValidSamples)
	nnet.CheckErr(err)
	mean, std := img.GetStats(append(train.Images, test.Images...))
	data := map[string]nnet.Data{"train": train, "test": test}
	if valid != nil {
		data["valid"] = valid
	}
	for _, d := range []*img.Data{train, valid, test} {
		if d != nil {
			d.Normalise(mean, std)
			d.SetNorm(conf.Normalise)
		}
	}

	rng := nnet.SetSeed(conf.RandSeed)
	testRng := rand.New(rand.NewSource(rng.Int63()))
	trainData := nnet.NewDataset(train, conf.TrainBatch, conf.MaxSamples, rng)
	if conf.Distort {
		trans := img.GrayTrans
		if conf.Normalise {
			trans |= img.Normalise
		}
		trainData.SetTrans(img.NewTransformer(train, trans, rng))
	}

	net, err := nnet.New(conf, trainData.BatchSize, trainData.Shape(), len(train.Classes()), true, rng)
	nnet.CheckErr(err)
	defer net.Close()
	fmt.Println(net)

	tester, err := nnet.NewTestLogger(conf, data, testRng)
	nnet.CheckErr(err)
	defer tester.Net.Close()

	err = nnet.Train(net, trainData, tester)
	nnet.CheckErr(err)
	if len(tester.Stats) == 0 {
		return
	}
	s := tester.Stats[len(tester.Stats)-1]
	for i, val := range s.Format() {
		fmt.Printf("final %s =%s\n", tester.Headers[i], val)
	}
	printSamples(tester)

	ckpt := nnet.NewCheckpoint(model, tester.Net, tester.Stats, s.Epoch)
	err = nnet.SaveCheckpoint(ckpt)
	nnet.CheckErr(err)
	fmt.Println("saved checkpoint to", model+".ckpt")
}

// print the predictions for the start of the test set
func printSamples(t *nnet.TestLogger) {
	dset := t.Data["test"]
	dset.Rewind()
	x, y, labels := dset.NextBatch()
	pred, err := t.Net.Fprop(x, y)
	nnet.CheckErr(err)
	probs := pred.Data().([]float32)
	classes := len(dset.Classes())
	fmt.Println("== Sample predictions ==")
	for i := 0; i < numSamples && i < dset.BatchSize; i++ {
		best := 0
		for j := 1; j < classes; j++ {
			if probs[i*classes+j] > probs[i*classes+best] {
				best = j
			}
		}
		status := ""
		if int32(best) != labels[i] {
			status = "  **"
		}
		fmt.Printf("%4d: predict %d  actual %d  confidence %5.1f%%%s\n",
			i, best, labels[i], 100*probs[i*classes+best], status)
	}
}

func defaultConfig() nnet.Config {
	return nnet.Config{
		DataSet:    "mnist",
		Eta:        0.1,
		Lambda:     3.0,
		TrainRuns:  1,
		MaxEpoch:   20,
		TrainBatch: 10,
		TestBatch:  100,
		Shuffle:    true,
		WeightInit: nnet.LecunNormal,
	}.AddLayers(
		nnet.Linear{Nout: 100},
		nnet.Activation{Atype: "relu"},
		nnet.Linear{Nout: 10},
		nnet.Activation{Atype: "softmax"},
	)
}
