// Package img contains routines for manipulating sets of grayscale images.
package img

import (
	"image"
	"image/color"
)

// Gray color stores a float in range 0-1
type Gray struct {
	Y float32
}

func (c Gray) RGBA() (r, g, b, a uint32) {
	y := uint32(clamp(c.Y, 0, 1) * 0xffff)
	return y, y, y, 0xffff
}

func grayModel(c color.Color) color.Color {
	if _, ok := c.(Gray); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return Gray{Y: 0.299*float32(r)/0xffff + 0.587*float32(g)/0xffff + 0.114*float32(b)/0xffff}
}

var GrayModel = color.ModelFunc(grayModel)

// GrayImage stores pixel values as float32 in row major order.
type GrayImage struct {
	Pix    []float32
	Width  int
	Height int
}

func NewGray(width, height int) *GrayImage {
	return &GrayImage{Pix: make([]float32, height*width), Width: width, Height: height}
}

// NewGrayBytes creates an image from 8 bit pixel values scaled to range 0-1.
func NewGrayBytes(width, height int, pixels []byte) *GrayImage {
	m := NewGray(width, height)
	for i, pix := range pixels {
		m.Pix[i] = float32(pix) / 255
	}
	return m
}

func (m *GrayImage) ColorModel() color.Model { return GrayModel }

func (m *GrayImage) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width, m.Height) }

func (m *GrayImage) At(x, y int) color.Color { return m.GrayAt(x, y) }

// GrayAt returns zero for pixels outside the image bounds.
func (m *GrayImage) GrayAt(x, y int) Gray {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return Gray{}
	}
	return Gray{Y: m.Pix[y*m.Width+x]}
}

func (m *GrayImage) Set(x, y int, c color.Color) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Pix[y*m.Width+x] = grayModel(c).(Gray).Y
}

// Pixels returns the raw float values, in row major order.
func (m *GrayImage) Pixels() []float32 { return m.Pix }

func (m *GrayImage) Clone() *GrayImage {
	dst := NewGray(m.Width, m.Height)
	copy(dst.Pix, m.Pix)
	return dst
}

// Scaled renders the image enlarged by an integer factor for display.
func (m *GrayImage) Scaled(factor int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, m.Width*factor, m.Height*factor))
	for y := 0; y < m.Height*factor; y++ {
		for x := 0; x < m.Width*factor; x++ {
			val := clamp(m.Pix[(y/factor)*m.Width+x/factor], 0, 1)
			dst.SetGray(x, y, color.Gray{Y: uint8(val * 255)})
		}
	}
	return dst
}

// Highlight renders the image inverted for display, with the strokes in red
// if the highlight flag is set.
func Highlight(src *GrayImage, on bool) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, src.Width, src.Height))
	for i, pix := range src.Pix {
		val := uint8(clamp(1-pix, 0, 1) * 255)
		col := color.NRGBA{R: val, G: val, B: val, A: 255}
		if on {
			col.R = 255
		}
		dst.Pix[i*4] = col.R
		dst.Pix[i*4+1] = col.G
		dst.Pix[i*4+2] = col.B
		dst.Pix[i*4+3] = col.A
	}
	return dst
}

func clamp(x, x0, x1 float32) float32 {
	if x < x0 {
		return x0
	}
	if x > x1 {
		return x1
	}
	return x
}
