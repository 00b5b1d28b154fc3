package img

import (
	"math"
	"math/rand"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// Types of image transformations
type TransType int

const NoTrans TransType = 0

const (
	Scale TransType = 1 << iota
	Rotate
	Elastic
	Normalise
)

// GrayTrans is the set of distortions applied to grayscale digit images.
var GrayTrans = Scale | Rotate | Elastic

var transTypeNames = map[TransType]string{
	Scale:     "Scale",
	Rotate:    "Rotate",
	Elastic:   "Elastic",
	Normalise: "Normalise",
}

func (t TransType) String() string {
	if t == NoTrans {
		return "None"
	}
	s := []string{}
	for key, name := range transTypeNames {
		if t&key != 0 {
			s = append(s, name)
		}
	}
	sort.Strings(s)
	return strings.Join(s, " ")
}

// Parameters for the random distortions
var (
	MaxScale     = 0.15
	MaxRotate    = 15.0
	ElasticScale = 0.5
	KernelSize   = 9
	KernelSigma  = 4.0
)

// Transformer applies a sequence of random transformations to images from a data set.
type Transformer struct {
	Amount float64
	Trans  TransType
	data   *Data
	w, h   int
	rng    []*rand.Rand
	conv   Convolution
}

// Create a new transformer object: each worker thread has its own rng stream.
func NewTransformer(data *Data, trans TransType, rng *rand.Rand) *Transformer {
	threads := runtime.GOMAXPROCS(0)
	b := data.Images[0].Bounds()
	t := &Transformer{Amount: 1, Trans: trans, data: data, w: b.Dx(), h: b.Dy()}
	for i := 0; i < threads; i++ {
		t.rng = append(t.rng, rand.New(rand.NewSource(rng.Int63())))
	}
	t.conv = NewConv(gaussian1d(KernelSigma, KernelSize), KernelSize, t.w, t.h)
	return t
}

// Transform a batch of images in parallel
func (t *Transformer) TransformBatch(index []int, dst []*GrayImage) []*GrayImage {
	if dst == nil {
		dst = make([]*GrayImage, len(index))
	}
	var wg sync.WaitGroup
	queue := make(chan int, len(t.rng))
	for thread := range t.rng {
		wg.Add(1)
		go func(thread int) {
			for i := range queue {
				dst[i] = t.Transform(t.data.Images[index[i]], thread)
			}
			wg.Done()
		}(thread)
	}
	for i := range index {
		queue <- i
	}
	close(queue)
	wg.Wait()
	return dst
}

// Perform one or more image transforms
func (t *Transformer) Transform(src *GrayImage, thread int) *GrayImage {
	res := src
	if t.Trans&(Scale|Rotate|Elastic) != 0 {
		res = t.distort(res, thread)
	}
	if t.Trans&Normalise != 0 {
		res = t.normalise(res)
	}
	return res
}

func (t *Transformer) normalise(src *GrayImage) *GrayImage {
	dst := NewGray(t.w, t.h)
	for i, val := range src.Pix {
		dst.Pix[i] = (val - t.data.Mean) / t.data.StdDev
	}
	return dst
}

// Scaling, rotation and elastic distortion are combined into a per pixel
// displacement field which is applied with bilinear interpolation.
func (t *Transformer) distort(src *GrayImage, thread int) *GrayImage {
	rng := t.rng[thread]
	dx := make([]float32, t.w*t.h)
	dy := make([]float32, t.w*t.h)
	var elX, elY float32
	if t.Trans&Elastic != 0 {
		ux := make([]float32, t.w*t.h)
		uy := make([]float32, t.w*t.h)
		for i := range ux {
			ux[i] = rng.Float32()*2 - 1
			uy[i] = rng.Float32()*2 - 1
		}
		t.conv.Apply(ux, dx)
		t.conv.Apply(uy, dy)
		elX = float32(t.Amount*ElasticScale) * float32(t.w)
		elY = float32(t.Amount*ElasticScale) * float32(t.h)
	}
	var sx, sy float32
	if t.Trans&Scale != 0 {
		sx = float32(t.Amount*MaxScale) * (2*rng.Float32() - 1)
		sy = float32(t.Amount*MaxScale) * (2*rng.Float32() - 1)
	}
	var sina, cosa float32
	if t.Trans&Rotate != 0 {
		angle := t.Amount * MaxRotate * (math.Pi / 180) * (2*rng.Float64() - 1)
		sa, ca := math.Sincos(angle)
		sina, cosa = float32(sa), float32(ca-1)
	}
	for y := 0; y < t.h; y++ {
		ym := float32(2*y-t.h+1) / 2
		for x := 0; x < t.w; x++ {
			xm := float32(2*x-t.w+1) / 2
			dx[x+y*t.w] = dx[x+y*t.w]*elX + xm*(sx+cosa) - ym*sina
			dy[x+y*t.w] = dy[x+y*t.w]*elY + ym*(sy+cosa) + xm*sina
		}
	}
	dst := NewGray(t.w, t.h)
	for y := 0; y < t.h; y++ {
		for x := 0; x < t.w; x++ {
			pos := x + y*t.w
			xv := float32(x) + dx[pos]
			yv := float32(y) + dy[pos]
			// floor so the interpolation weights stay in range for negative coords
			ix := int(math.Floor(float64(xv)))
			iy := int(math.Floor(float64(yv)))
			xf, yf := xv-float32(ix), yv-float32(iy)
			avg0 := src.GrayAt(ix, iy).Y*(1-xf) + src.GrayAt(ix+1, iy).Y*xf
			avg1 := src.GrayAt(ix, iy+1).Y*(1-xf) + src.GrayAt(ix+1, iy+1).Y*xf
			dst.Set(x, y, Gray{Y: avg0*(1-yf) + avg1*yf})
		}
	}
	return dst
}
