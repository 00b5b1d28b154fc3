package img

import (
	"image"

	"digitgraph/stats"
)

// Data is a labelled image set which implements the nnet.Data interface.
type Data struct {
	Class  []string
	Dims   []int
	Labels []int32
	Images []*GrayImage
	Mean   float32
	StdDev float32
	norm   bool
}

// Create a new image set: all images must share the dimensions of the first.
func NewData(classes []string, labels []int32, images []*GrayImage) *Data {
	src := images[0]
	return &Data{
		Class:  classes,
		Dims:   []int{src.Height, src.Width, 1},
		Labels: labels,
		Images: images,
	}
}

// Len function returns number of images
func (d *Data) Len() int { return len(d.Labels) }

// Classes returns the list of class names
func (d *Data) Classes() []string { return d.Class }

// Shape returns height, width, channels
func (d *Data) Shape() []int { return d.Dims }

// Label returns classification for the given images
func (d *Data) Label(index []int, label []int32) {
	for i, ix := range index {
		label[i] = d.Labels[ix]
	}
}

// Input returns scaled input data in buf, normalised if enabled via SetStats.
func (d *Data) Input(index []int, buf []float32) {
	nfeat := d.nfeat()
	for i, ix := range index {
		copy(buf[i*nfeat:], d.Images[ix].Pix)
	}
	if d.norm {
		for i, val := range buf[:len(index)*nfeat] {
			buf[i] = (val - d.Mean) / d.StdDev
		}
	}
}

// Image returns given image number for display
func (d *Data) Image(ix int) image.Image {
	return d.Images[ix]
}

// Slice returns images from start to end
func (d *Data) Slice(start, end int) *Data {
	data := *d
	data.Labels = append([]int32{}, d.Labels[start:end]...)
	data.Images = append([]*GrayImage{}, d.Images[start:end]...)
	return &data
}

// SetStats calculates the pixel mean and stddev and enables normalisation on input.
func (d *Data) SetStats() {
	d.Normalise(GetStats(d.Images))
}

// Normalise scales the input values to the given mean and stddev. Typically the
// stats are calculated over the whole corpus so that each set uses the same scaling.
func (d *Data) Normalise(mean, stddev float32) {
	d.Mean, d.StdDev = mean, stddev
	d.norm = true
}

// SetNorm switches normalisation on or off. Stats must have been set first.
func (d *Data) SetNorm(on bool) {
	d.norm = on && d.StdDev != 0
}

// GetStats calculates the pixel mean and stddev over a set of images.
func GetStats(images []*GrayImage) (mean, stddev float32) {
	var avg stats.Average
	for _, m := range images {
		for _, pix := range m.Pix {
			avg.Add(float64(pix))
		}
	}
	if avg.StdDev == 0 {
		avg.StdDev = 1
	}
	return float32(avg.Mean), float32(avg.StdDev)
}

func (d *Data) nfeat() int {
	n := 1
	for _, dim := range d.Dims {
		n *= dim
	}
	return n
}
