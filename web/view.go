package web

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"strconv"
	"time"

	"digitgraph/nnet"

	"github.com/gorilla/mux"
)

const (
	aspectWeights    = 0.25
	factorMinWeights = 20
)

// color map for the weight intensity
var cmap = [][3]float32{{0, 0, .5}, {0, 0, 1}, {0, .5, 1}, {0, 1, 1}, {.5, 1, .5}, {1, 1, 0}, {1, .5, 0}, {1, 0, 0}, {.5, 0, 0}}

// viewData renders the weights for each layer to a colour mapped image with
// one block per output unit and the bias along the top and left block border.
type viewData struct {
	layers []viewLayer
}

type viewLayer struct {
	index    int
	desc     string
	scale    float32
	nin      int
	nout     int
	wImage   *image.NRGBA
	wix, wiy int
	wox, woy int
	wborder  int
}

func newViewData(net *nnet.Network) *viewData {
	v := &viewData{}
	if net == nil {
		return v
	}
	for i, layer := range net.Layers {
		pLayer, ok := layer.(nnet.ParamLayer)
		if !ok {
			continue
		}
		W, B := pLayer.Params()
		wDims, bDims := W.Shape(), B.Shape()
		l := viewLayer{
			index:   i,
			desc:    fmt.Sprintf("%d: %s %v %v", i, layer.ToString(), []int(wDims), []int(bDims)),
			nin:     wDims[0],
			nout:    wDims[1],
			scale:   5 * float32(1/math.Sqrt(float64(wDims[0]))),
			wborder: 1,
		}
		l.wiy, l.wix = factorise(l.nin, 0, 1)
		l.woy, l.wox = factorise(l.nout, factorMinWeights, aspectWeights)
		l.wImage = image.NewNRGBA(image.Rect(0, 0, (l.wix+l.wborder)*l.wox, (l.wiy+l.wborder)*l.woy))
		v.layers = append(v.layers, l)
	}
	return v
}

// redraw the weight images from the current network parameters
func (v *viewData) update(net *nnet.Network) {
	if net == nil {
		return
	}
	for _, p := range net.ExportParams() {
		for i := range v.layers {
			if v.layers[i].index == p.Layer {
				v.layers[i].render(p.W, p.B)
			}
		}
	}
}

func (l *viewLayer) render(weights, biases []float32) {
	// bias along the top and left border of each block
	for u := 0; u < l.nout && u < len(biases); u++ {
		xb, yb := l.block(u)
		col := mapColor(biases[u], -l.scale, l.scale)
		for j := 0; j < l.wix; j++ {
			l.wImage.Set(xb+j, yb, col)
		}
		for j := 0; j < l.wiy; j++ {
			l.wImage.Set(xb, yb+j, col)
		}
	}
	// weights for output unit u are column u of the input x output matrix
	for u := 0; u < l.nout; u++ {
		xb, yb := l.block(u)
		for j := 0; j < l.nin; j++ {
			col := mapColor(weights[j*l.nout+u], -l.scale, l.scale)
			l.wImage.Set(xb+1+j%l.wix, yb+1+j/l.wix, col)
		}
	}
}

func (l *viewLayer) block(i int) (x, y int) {
	x = (l.wix + l.wborder) * (i % l.wox)
	y = (l.wiy + l.wborder) * (i / l.wox)
	return
}

// ViewPage renders the network weight visualisation.
type ViewPage struct {
	*Templates
	net *Network
}

// Base data for handler functions to view the network weights
func NewViewPage(t *Templates, net *Network) *ViewPage {
	return &ViewPage{net: net, Templates: t.Select("/view")}
}

type LayerInfo struct {
	Desc  string
	Image string
	Width int
}

// Handler function for the main view page
func (p *ViewPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.Heading = p.net.heading()
		if err := p.ExecuteTemplate(w, "view", p); err != nil {
			logError(w, err)
		}
	}
}

// Layers lists the weight images to display, the timestamp defeats browser caching.
func (p *ViewPage) Layers() []LayerInfo {
	info := []LayerInfo{}
	ts := time.Now().Unix()
	for i, l := range p.net.view.layers {
		width := l.wImage.Bounds().Dx()
		if width < 300 {
			width *= 4
		}
		info = append(info, LayerInfo{
			Desc:  l.desc,
			Image: fmt.Sprintf("/net/weights/%d?ts=%d", i, ts),
			Width: width,
		})
	}
	return info
}

// Handler function to generate the weight visualisation image
func (p *ViewPage) Image() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		layer, _ := strconv.Atoi(mux.Vars(r)["layer"])
		if layer < len(p.net.view.layers) {
			if m := p.net.view.layers[layer].wImage; m != nil {
				w.Header().Set("Content-type", "image/png")
				png.Encode(w, m)
				return
			}
		}
		http.NotFound(w, r)
	}
}

// if n > nmin returns f1, f2 where f1*f2 = n and f1 <= aspect * f2 else 1, n
func factorise(n, nmin int, aspect float64) (f1, f2 int) {
	if n < 1 {
		panic("factorise: input must be >= 1")
	}
	if n > nmin {
		for f1 = int(math.Sqrt(float64(n) * aspect)); f1 > 1; f1-- {
			if n%f1 == 0 {
				return f1, n / f1
			}
		}
	}
	return 1, n
}

// convert value in range cmin:cmax to interpolated color from cmap
func mapColor(val float32, cmin, cmax float32) color.NRGBA {
	var col [3]float32
	ncol := len(cmap)
	switch {
	case val <= cmin:
		col = cmap[0]
	case val >= cmax:
		col = cmap[ncol-1]
	default:
		vsc := float32(ncol-1) * (val - cmin) / (cmax - cmin)
		ix := int(vsc)
		fx := vsc - float32(ix)
		for i := range col {
			col[i] = cmap[ix][i]*(1-fx) + cmap[ix+1][i]*fx
		}
	}
	return color.NRGBA{uint8(col[0] * 255), uint8(col[1] * 255), uint8(col[2] * 255), 255}
}
