package nnet

import (
	"image"
	"math/rand"
	"os"
	"path"
	"sync"

	"digitgraph/img"

	"gorgonia.org/tensor"
)

var (
	DataDir   = dataDir()
	DataTypes = []string{"train", "test", "valid"}
)

func dataDir() string {
	if dir := os.Getenv("DIGITGRAPH_DATA"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return path.Join(home, ".digitgraph")
}

// Data interface type represents the raw data for a training or test set
type Data interface {
	Len() int
	Classes() []string
	Shape() []int
	Label(index []int, label []int32)
	Input(index []int, buf []float32)
	Image(i int) image.Image
}

// Dataset type encapsulates a set of training, test or validation data.
// Batches are loaded into alternating buffers by a background goroutine.
// Each batch is a fixed size: if the number of samples does not divide evenly
// then the final batch wraps around to the start of the index list.
type Dataset struct {
	Data
	Samples   int
	BatchSize int
	Batches   int
	x, y      [2]*tensor.Dense
	xBuffer   [2][]float32
	yBuffer   [2][]float32
	labels    [2][]int32
	trans     *img.Transformer
	images    []*img.GrayImage
	indexes   []int
	batchIdx  []int
	buf       int
	batch     int
	epoch     int
	nfeat     int
	nclasses  int
	rng       *rand.Rand
	sync.WaitGroup
}

// Create a new Dataset struct, allocate the buffers and set the batch size and maxSamples
func NewDataset(data Data, batchSize, maxSamples int, rng *rand.Rand) *Dataset {
	d := &Dataset{Data: data, Samples: data.Len(), rng: rng}
	if maxSamples > 0 && d.Samples > maxSamples {
		d.Samples = maxSamples
	}
	if batchSize == 0 || batchSize > d.Samples {
		d.BatchSize = d.Samples
	} else {
		d.BatchSize = batchSize
	}
	d.Batches = d.Samples / d.BatchSize
	if d.Samples%d.BatchSize != 0 {
		d.Batches++
	}
	d.nfeat = Prod(data.Shape())
	d.nclasses = len(data.Classes())
	for i := range d.x {
		d.xBuffer[i] = make([]float32, d.BatchSize*d.nfeat)
		d.yBuffer[i] = make([]float32, d.BatchSize*d.nclasses)
		d.labels[i] = make([]int32, d.BatchSize)
		d.x[i] = tensor.New(tensor.WithShape(d.BatchSize, d.nfeat), tensor.WithBacking(d.xBuffer[i]))
		d.y[i] = tensor.New(tensor.WithShape(d.BatchSize, d.nclasses), tensor.WithBacking(d.yBuffer[i]))
	}
	d.indexes = make([]int, d.Samples)
	for i := range d.indexes {
		d.indexes[i] = i
	}
	d.batchIdx = make([]int, d.BatchSize)
	return d
}

// SetTrans applies random distortion to each batch of images as it is loaded.
func (d *Dataset) SetTrans(t *img.Transformer) {
	d.trans = t
	d.images = make([]*img.GrayImage, d.BatchSize)
}

// kick off load of next batch of data in background
func (d *Dataset) loadBatch() {
	d.Add(1)
	start := d.batch * d.BatchSize
	buf := d.buf
	go func() {
		index := d.batchIdx
		for i := range index {
			index[i] = d.indexes[(start+i)%d.Samples]
		}
		if d.trans != nil {
			d.images = d.trans.TransformBatch(index, d.images)
			for i, m := range d.images {
				copy(d.xBuffer[buf][i*d.nfeat:], m.Pixels())
			}
		} else {
			d.Input(index, d.xBuffer[buf])
		}
		d.Label(index, d.labels[buf])
		onehot(d.labels[buf], d.yBuffer[buf], d.nclasses)
		d.Done()
	}()
}

// Get next batch of data as input, one hot encoded target and class labels
func (d *Dataset) NextBatch() (x, y *tensor.Dense, labels []int32) {
	d.Wait()
	x, y, labels = d.x[d.buf], d.y[d.buf], d.labels[d.buf]
	d.batch = (d.batch + 1) % d.Batches
	d.buf = (d.buf + 1) % 2
	d.loadBatch()
	return
}

// Rewind to start of data
func (d *Dataset) Rewind() {
	d.Wait()
	d.batch = 0
	d.loadBatch()
}

// Called at start of each epoch
func (d *Dataset) NextEpoch() {
	d.Wait()
	d.epoch++
	d.batch = 0
	d.loadBatch()
}

// Shuffle the data set
func (d *Dataset) Shuffle() {
	d.Wait()
	d.indexes = d.rng.Perm(d.Samples)
}

// BatchRows gives the number of distinct samples in the given batch: the
// final batch repeats samples from the start when the set does not divide evenly.
func (d *Dataset) BatchRows(batch int) int {
	if rows := d.Samples - batch*d.BatchSize; rows < d.BatchSize {
		return rows
	}
	return d.BatchSize
}

func onehot(labels []int32, buf []float32, classes int) {
	for i := range buf {
		buf[i] = 0
	}
	for i, label := range labels {
		buf[i*classes+int(label)] = 1
	}
}

// Check if file exists under DataDir
func FileExists(name string) bool {
	filePath := path.Join(DataDir, name)
	_, err := os.Stat(filePath)
	return err == nil
}

type data struct {
	Class  []string
	Dims   []int
	Labels []int32
	Inputs []float32
}

// NewData function creates a simple in memory data set which implements the Data interface
func NewData(classes []string, shape []int, labels []int32, inputs []float32) Data {
	return data{Class: classes, Dims: shape, Labels: labels, Inputs: inputs}
}

func (d data) Len() int { return len(d.Labels) }

func (d data) Classes() []string { return d.Class }

func (d data) Shape() []int { return d.Dims }

func (d data) Label(index []int, label []int32) {
	for i, ix := range index {
		label[i] = d.Labels[ix]
	}
}

func (d data) Input(index []int, buf []float32) {
	nfeat := Prod(d.Dims)
	for i, ix := range index {
		copy(buf[i*nfeat:], d.Inputs[ix*nfeat:(ix+1)*nfeat])
	}
}

func (d data) Image(i int) image.Image { return nil }
