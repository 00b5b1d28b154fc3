package web

import (
	"fmt"
	"image/png"
	"log"
	"math/rand"
	"net/http"
	"strconv"

	"digitgraph/img"

	"github.com/gorilla/mux"
)

// ImagePage has handlers to view the input data sets in a grid with one
// page per screen full of images. The view settings are stored per browser
// session so that multiple clients do not interfere.
type ImagePage struct {
	*Templates
	Dset    string
	Class   int
	Page    int
	Errors  bool
	Distort string
	Rows    []int
	Cols    []int
	Width   int
	Height  int
	Pages   int
	Total   int
	net     *Network
}

// Base data for handler functions to view the data set images
func NewImagePage(t *Templates, net *Network, scale float64, rows, cols int) *ImagePage {
	p := &ImagePage{net: net, Templates: t, Page: 1}
	for _, opt := range []string{"all", "errors", "prev", "next", "distort"} {
		p.AddOption(Link{Name: opt, Url: "./" + opt})
	}
	if dims := net.Data["train"].Shape(); len(dims) >= 2 {
		p.Height = int(float64(dims[0]) * scale)
		p.Width = int(float64(dims[1]) * scale)
	}
	p.Rows = seq(rows)
	p.Cols = seq(cols)
	return p
}

// read the view settings from the session cookie
func (p *ImagePage) load(r *http.Request) {
	s := p.session(r)
	p.Page = intValue(s.Values["page"], 1)
	p.Class = intValue(s.Values["class"], 0)
	p.Errors, _ = s.Values["errors"].(bool)
	p.Distort, _ = s.Values["distort"].(string)
}

func (p *ImagePage) save(w http.ResponseWriter, r *http.Request) {
	s := p.session(r)
	s.Values["page"] = p.Page
	s.Values["class"] = p.Class
	s.Values["errors"] = p.Errors
	s.Values["distort"] = p.Distort
	if err := s.Save(r, w); err != nil {
		log.Println("error saving session:", err)
	}
}

func intValue(v interface{}, def int) int {
	if n, ok := v.(int); ok {
		return n
	}
	return def
}

// Handler function for the main image grid
func (p *ImagePage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.load(r)
		p.Dset = mux.Vars(r)["dset"]
		base := "/images/" + p.Dset + "/"
		p.Select(base)
		sel := []string{"all"}
		if p.Errors {
			sel = []string{"errors"}
		}
		if p.Distort != "" {
			sel = append(sel, "distort")
		}
		p.SelectOptions(sel)
		p.Heading = p.net.heading()
		template := "blank"
		if d, ok := p.net.Data[p.Dset]; ok {
			template = "images"
			p.Total, p.Pages = p.pageCount()
			if p.Page > p.Pages || p.Page < 1 {
				p.Page = 1
			}
			p.Dropdown = []Link{{Name: "all classes", Url: base + "0", Selected: p.Class == 0}}
			for i, class := range d.Classes() {
				p.Dropdown = append(p.Dropdown, Link{Name: class, Url: base + strconv.Itoa(i+1), Selected: i+1 == p.Class})
			}
		} else {
			p.Dropdown = nil
		}
		if err := p.ExecuteTemplate(w, template, p); err != nil {
			logError(w, err)
		}
	}
}

// Handler function to update the view options and redirect back to the grid
func (p *ImagePage) Setopt() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.load(r)
		vars := mux.Vars(r)
		p.Dset = vars["dset"]
		p.Total, p.Pages = p.pageCount()
		switch vars["opt"] {
		case "all":
			p.Errors = false
			p.Page = 1
		case "errors":
			p.Errors = true
			p.Page = 1
		case "prev":
			p.Page = mod(p.Page-1, 1, p.Pages)
		case "next":
			p.Page = mod(p.Page+1, 1, p.Pages)
		case "distort":
			if p.Distort == "" {
				p.Distort = strconv.Itoa(rand.Intn(999999))
			} else {
				p.Distort = ""
			}
		}
		p.save(w, r)
		http.Redirect(w, r, "/images/"+p.Dset+"/", http.StatusFound)
	}
}

// Handler function to filter the grid by class
func (p *ImagePage) SetClass() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.load(r)
		vars := mux.Vars(r)
		p.Dset = vars["dset"]
		p.Class, _ = strconv.Atoi(vars["class"])
		p.Page = 1
		p.save(w, r)
		http.Redirect(w, r, "/images/"+p.Dset+"/", http.StatusFound)
	}
}

// Handler function to generate a png image for one entry in the data set
func (p *ImagePage) Image() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		vars := mux.Vars(r)
		dset := vars["dset"]
		id, _ := strconv.Atoi(vars["id"])
		data, ok := p.net.Data[dset]
		if !ok || id < 1 || id > data.Len() {
			http.NotFound(w, r)
			return
		}
		m, ok := data.Image(id - 1).(*img.GrayImage)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.FormValue("d") != "" && p.net.trans != nil {
			m = p.net.trans.Transform(m, 0)
		}
		pred := p.predict(dset, id)
		out := img.Highlight(m, pred >= 0 && pred != p.label(dset, id))
		w.Header().Set("Content-type", "image/png")
		if err := png.Encode(w, out); err != nil {
			log.Println("error encoding image:", err)
		}
	}
}

// total number of images to show and number of pages
func (p *ImagePage) pageCount() (total, pages int) {
	data, ok := p.net.Data[p.Dset]
	if !ok {
		return 0, 1
	}
	if p.Class == 0 && !p.Errors {
		total = data.Len()
	} else {
		for i := 1; i <= data.Len(); i++ {
			if p.showImage(i) {
				total++
			}
		}
	}
	pages = total / (len(p.Rows) * len(p.Cols))
	if total%(len(p.Rows)*len(p.Cols)) != 0 {
		pages++
	}
	if pages < 1 {
		pages = 1
	}
	return total, pages
}

// should this image be included given the class and errors settings?
func (p *ImagePage) showImage(i int) bool {
	if p.Class != 0 && p.label(p.Dset, i) != p.Class-1 {
		return false
	}
	if p.Errors {
		pred := p.predict(p.Dset, i)
		return pred >= 0 && pred != p.label(p.Dset, i)
	}
	return true
}

// Index returns the image number for the given grid position on the current page, or 0 if past the end.
func (p *ImagePage) Index(row, col int) int {
	data, ok := p.net.Data[p.Dset]
	if !ok {
		return 0
	}
	pos := (p.Page-1)*len(p.Rows)*len(p.Cols) + row*len(p.Cols) + col
	if p.Class == 0 && !p.Errors {
		if pos < data.Len() {
			return pos + 1
		}
		return 0
	}
	n := 0
	for i := 1; i <= data.Len(); i++ {
		if p.showImage(i) {
			if n == pos {
				return i
			}
			n++
		}
	}
	return 0
}

// Url gives the image source location including the distortion seed
func (p *ImagePage) Url(i int) string {
	url := fmt.Sprintf("/img/%s/%d", p.Dset, i)
	if p.Distort != "" {
		url += "?d=" + p.Distort
	}
	return url
}

// Label formats the class and the prediction if it differs
func (p *ImagePage) Label(i int) string {
	lab := p.label(p.Dset, i)
	text := strconv.Itoa(lab)
	if pred := p.predict(p.Dset, i); pred >= 0 && pred != lab {
		text += fmt.Sprintf(" => %d", pred)
	}
	return text
}

func (p *ImagePage) label(dset string, i int) int {
	labels := p.net.Labels[dset]
	if i < 1 || i > len(labels) {
		return -1
	}
	return int(labels[i-1])
}

func (p *ImagePage) predict(dset string, i int) int {
	pred, ok := p.net.Pred[dset]
	if !ok || i < 1 || i > len(pred) {
		return -1
	}
	return int(pred[i-1])
}

func seq(n int) []int {
	list := make([]int, n)
	for i := range list {
		list[i] = i
	}
	return list
}

// mod maps i into the range min to max inclusive with wraparound
func mod(i, min, max int) int {
	if i < min {
		return max
	}
	if i > max {
		return min
	}
	return i
}
