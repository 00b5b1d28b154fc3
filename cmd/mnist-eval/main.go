// Command mnist-eval loads a saved checkpoint and reports the test set performance.
package main

import (
	"flag"
	"fmt"
	"os"
	"path"
	"strings"

	"digitgraph/img"
	"digitgraph/mnist"
	"digitgraph/nnet"
	"digitgraph/stats"
)

func main() {
	model := "mnist"
	if n := len(os.Args); n > 1 && !strings.HasPrefix(os.Args[n-1], "-") {
		model = os.Args[n-1]
	}
	samples := flag.Int("samples", 10, "number of sample predictions to print")
	flag.Parse()

	ckpt, err := nnet.LoadCheckpoint(model)
	nnet.CheckErr(err)
	conf := ckpt.Conf
	fmt.Printf("checkpoint %s: epoch %d\n", model, ckpt.Epoch)

	dataDir := path.Join(nnet.DataDir, "mnist")
	err = mnist.Download(dataDir)
	nnet.CheckErr(err)
	train, test, err := mnist.Load(dataDir)
	nnet.CheckErr(err)
	mean, std := img.GetStats(append(train.Images, test.Images...))
	test.Normalise(mean, std)
	test.SetNorm(conf.Normalise)

	rng := nnet.SetSeed(conf.RandSeed)
	dset := nnet.NewDataset(test, conf.TestBatch, 0, rng)
	net, err := nnet.New(conf, dset.BatchSize, dset.Shape(), len(test.Classes()), false, rng)
	nnet.CheckErr(err)
	defer net.Close()
	err = ckpt.Apply(net)
	nnet.CheckErr(err)

	pred := make([]int32, dset.Samples)
	errVal, err := net.Error(dset, pred)
	nnet.CheckErr(err)
	fmt.Printf("test error = %.2f%%\n", 100*errVal)

	cm := stats.NewConfusion(test.Classes())
	for i := 0; i < dset.Samples; i++ {
		cm.Add(test.Labels[i], pred[i])
	}
	fmt.Println("== Confusion matrix ==")
	fmt.Print(cm.Table())

	fmt.Println("== Sample predictions ==")
	for i := 0; i < *samples && i < dset.Samples; i++ {
		status := ""
		if pred[i] != test.Labels[i] {
			status = "  **"
		}
		fmt.Printf("%4d: predict %d  actual %d%s\n", i, pred[i], test.Labels[i], status)
	}
}
