package img

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

func printArray(in []float32, size int) string {
	s := make([]string, size)
	for i := 0; i < size; i++ {
		s[i] = fmt.Sprintf("%6.3f", in[i*size:(i+1)*size])
	}
	return strings.Join(s, "\n")
}

// diagonal line from top right to bottom left
func testData(size int) *Data {
	src := NewGray(size, size)
	for i := 1; i < size-1; i++ {
		src.Set(size-1-i, i, Gray{Y: 1})
	}
	return NewData([]string{"0", "1"}, []int32{1}, []*GrayImage{src})
}

func TestImage(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	d := testData(8)
	trans := NewTransformer(d, GrayTrans, rng)
	t.Logf("\n%s", printArray(d.Images[0].Pixels(), 8))

	for _, typ := range []TransType{Scale, Rotate, Elastic} {
		trans.Trans = typ
		dst := trans.Transform(d.Images[0], 0)
		t.Logf("%s\n%s", typ, printArray(dst.Pixels(), 8))
		if dst.Width != 8 || dst.Height != 8 {
			t.Errorf("%s: expected 8x8 output, got %dx%d", typ, dst.Width, dst.Height)
		}
		for i, pix := range dst.Pixels() {
			if pix < -0.001 || pix > 1.001 {
				t.Errorf("%s: pixel %d out of range: %f", typ, i, pix)
			}
		}
	}
}

func TestTransformBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	size := 12
	images := make([]*GrayImage, 20)
	labels := make([]int32, 20)
	for i := range images {
		images[i] = testData(size).Images[0]
	}
	d := NewData([]string{"0", "1"}, labels, images)
	trans := NewTransformer(d, GrayTrans, rng)
	index := make([]int, d.Len())
	for i := range index {
		index[i] = i
	}
	dst := trans.TransformBatch(index, nil)
	if len(dst) != d.Len() {
		t.Fatalf("expected %d images, got %d", d.Len(), len(dst))
	}
	for i, m := range dst {
		if len(m.Pix) != size*size {
			t.Errorf("image %d: expected %d pixels, got %d", i, size*size, len(m.Pix))
		}
	}
}

// transformer with the Normalise flag should scale pixels by the data set stats
func TestTransformNormalise(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	d := testData(8)
	d.SetStats()
	trans := NewTransformer(d, Normalise, rng)
	dst := trans.Transform(d.Images[0], 0)
	for i, pix := range d.Images[0].Pix {
		want := (pix - d.Mean) / d.StdDev
		if dst.Pix[i] != want {
			t.Fatalf("pixel %d: expected %f, got %f", i, want, dst.Pix[i])
		}
	}
	// combined with distortion the output should have the same scaling
	trans = NewTransformer(d, GrayTrans|Normalise, rng)
	dst = trans.Transform(d.Images[0], 0)
	lo, hi := -d.Mean/d.StdDev, (1-d.Mean)/d.StdDev
	for i, pix := range dst.Pix {
		if pix < lo-0.001 || pix > hi+0.001 {
			t.Errorf("pixel %d outside normalised range: %f", i, pix)
		}
	}
}

// smoothing a constant field should leave it unchanged
func TestConvolve(t *testing.T) {
	c := NewConv(gaussian1d(KernelSigma, KernelSize), KernelSize, 28, 28)
	in := make([]float32, 28*28)
	out := make([]float32, 28*28)
	for i := range in {
		in[i] = 1
	}
	c.Apply(in, out)
	for i, val := range out {
		if val < 0.999 || val > 1.001 {
			t.Fatalf("output %d: expected 1, got %f", i, val)
		}
	}
}

func TestDataStats(t *testing.T) {
	pixels := make([]byte, 16)
	for i := range pixels {
		pixels[i] = byte(i * 17)
	}
	m := NewGrayBytes(4, 4, pixels)
	if m.Pix[15] != 1 {
		t.Errorf("expected pixel 15 to be 1, got %f", m.Pix[15])
	}
	d := NewData([]string{"a", "b"}, []int32{0}, []*GrayImage{m})
	d.SetStats()
	if d.Mean <= 0 || d.StdDev <= 0 {
		t.Fatalf("expected positive stats, got mean=%f stddev=%f", d.Mean, d.StdDev)
	}
	buf := make([]float32, 16)
	d.Input([]int{0}, buf)
	var sum float32
	for _, val := range buf {
		sum += val
	}
	if mean := sum / 16; mean < -0.01 || mean > 0.01 {
		t.Errorf("expected normalised mean close to 0, got %f", mean)
	}
}

func TestSlice(t *testing.T) {
	images := make([]*GrayImage, 10)
	labels := make([]int32, 10)
	for i := range images {
		images[i] = NewGray(4, 4)
		labels[i] = int32(i)
	}
	d := NewData([]string{"0", "1"}, labels, images)
	s := d.Slice(2, 5)
	if s.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", s.Len())
	}
	label := make([]int32, 3)
	s.Label([]int{0, 1, 2}, label)
	for i, l := range label {
		if l != int32(i+2) {
			t.Errorf("label %d: expected %d, got %d", i, i+2, l)
		}
	}
}

func BenchmarkTransform(b *testing.B) {
	rng := rand.New(rand.NewSource(99))
	d := testData(28)
	trans := NewTransformer(d, GrayTrans, rng)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		trans.Transform(d.Images[0], 0)
	}
}
