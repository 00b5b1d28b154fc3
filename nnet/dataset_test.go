package nnet

import (
	"math/rand"
	"testing"

	"digitgraph/img"
)

// 10 samples of 2 features where sample i has values (i, i+0.5) and label i%3
func testDataSet() Data {
	inputs := make([]float32, 20)
	labels := make([]int32, 10)
	for i := 0; i < 10; i++ {
		inputs[i*2] = float32(i)
		inputs[i*2+1] = float32(i) + 0.5
		labels[i] = int32(i % 3)
	}
	return NewData([]string{"a", "b", "c"}, []int{2}, labels, inputs)
}

func TestDatasetBatches(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := NewDataset(testDataSet(), 4, 0, rng)
	if d.Samples != 10 || d.BatchSize != 4 || d.Batches != 3 {
		t.Fatalf("expected 10 samples in 3 batches of 4, got %d %d %d", d.Samples, d.BatchSize, d.Batches)
	}
	// final batch wraps around to samples 0 and 1
	expect := [][]int32{{0, 1, 2, 0}, {1, 2, 0, 1}, {2, 0, 0, 1}}
	first := []float32{0, 4, 8}
	d.Rewind()
	for batch := 0; batch < d.Batches; batch++ {
		x, y, labels := d.NextBatch()
		xv := x.Data().([]float32)
		if xv[0] != first[batch] {
			t.Errorf("batch %d: expected first value %f, got %f", batch, first[batch], xv[0])
		}
		yv := y.Data().([]float32)
		for i, label := range expect[batch] {
			if labels[i] != label {
				t.Errorf("batch %d: expected label %d, got %d", batch, label, labels[i])
			}
			for j := 0; j < 3; j++ {
				want := float32(0)
				if j == int(label) {
					want = 1
				}
				if yv[i*3+j] != want {
					t.Errorf("batch %d: one hot row %d col %d: expected %f, got %f", batch, i, j, want, yv[i*3+j])
				}
			}
		}
	}
	if rows := d.BatchRows(2); rows != 2 {
		t.Errorf("expected 2 rows in final batch, got %d", rows)
	}
	if rows := d.BatchRows(0); rows != 4 {
		t.Errorf("expected 4 rows in first batch, got %d", rows)
	}
	d.Wait()
}

func TestDatasetShuffle(t *testing.T) {
	seed := int64(7)
	d := NewDataset(testDataSet(), 4, 0, rand.New(rand.NewSource(seed)))
	d.Shuffle()
	perm := rand.New(rand.NewSource(seed)).Perm(10)
	d.Rewind()
	x, _, labels := d.NextBatch()
	xv := x.Data().([]float32)
	for i := 0; i < 4; i++ {
		if xv[i*2] != float32(perm[i]) {
			t.Errorf("row %d: expected sample %d, got %f", i, perm[i], xv[i*2])
		}
		if labels[i] != int32(perm[i]%3) {
			t.Errorf("row %d: expected label %d, got %d", i, perm[i]%3, labels[i])
		}
	}
	d.Wait()
}

// distorted batches should use the same input scaling as the plain loader
func TestDatasetTransformNorm(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	images := make([]*img.GrayImage, 4)
	labels := make([]int32, 4)
	for i := range images {
		pix := make([]byte, 16)
		for j := range pix {
			pix[j] = byte(i*40 + j*10)
		}
		images[i] = img.NewGrayBytes(4, 4, pix)
	}
	d := img.NewData([]string{"a", "b"}, labels, images)
	d.SetStats()
	d.SetNorm(true)
	dset := NewDataset(d, 4, 0, rng)
	dset.SetTrans(img.NewTransformer(d, img.Normalise, rng))
	dset.Rewind()
	x, _, _ := dset.NextBatch()
	want := make([]float32, 4*16)
	d.Input([]int{0, 1, 2, 3}, want)
	xv := x.Data().([]float32)
	for i := range want {
		if xv[i] != want[i] {
			t.Fatalf("value %d: batch has %f but normalised input is %f", i, xv[i], want[i])
		}
	}
	dset.Wait()
}

func TestDatasetMaxSamples(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := NewDataset(testDataSet(), 4, 6, rng)
	if d.Samples != 6 || d.Batches != 2 {
		t.Errorf("expected 6 samples in 2 batches, got %d %d", d.Samples, d.Batches)
	}
	// batch size is capped at the number of samples
	d = NewDataset(testDataSet(), 100, 0, rng)
	if d.BatchSize != 10 || d.Batches != 1 {
		t.Errorf("expected single batch of 10, got %d batches of %d", d.Batches, d.BatchSize)
	}
	d.Rewind()
	_, _, labels := d.NextBatch()
	if len(labels) != 10 {
		t.Errorf("expected 10 labels, got %d", len(labels))
	}
	d.Wait()
}
