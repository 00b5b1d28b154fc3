package web

import (
	"bytes"
	"html/template"
	"log"
	"math"
	"net/http"

	"digitgraph/nnet"
	"digitgraph/stats"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plots are rendered at screen resolution
const plotDPI = 96

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// TrainPage has handlers to control training and display the stats.
type TrainPage struct {
	*Templates
	net *Network
}

// Base data for handler functions to perform network training
func NewTrainPage(t *Templates, net *Network) *TrainPage {
	p := &TrainPage{net: net, Templates: t.Select("/train")}
	p.AddOption(Link{Name: "start", Url: "/train/start"})
	p.AddOption(Link{Name: "stop", Url: "/train/stop"})
	p.AddOption(Link{Name: "continue", Url: "/train/continue"})
	return p
}

// Handler function for the train base template
func (p *TrainPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.Heading = p.net.heading()
		if err := p.ExecuteTemplate(w, "train", p); err != nil {
			logError(w, err)
		}
	}
}

// Handler function for the start, stop and continue commands
func (p *TrainPage) Command() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd := mux.Vars(r)["cmd"]
		p.net.Lock()
		defer p.net.Unlock()
		switch cmd {
		case "start", "continue":
			if p.net.running {
				log.Println("skip train - already running")
			} else if err := p.net.Train(cmd == "start"); err != nil {
				logError(w, err)
				return
			}
		case "stop":
			p.net.Stop()
		}
		http.Redirect(w, r, "/train", http.StatusFound)
	}
}

// Handler function for the stats frame, this is refreshed every epoch
func (p *TrainPage) Stats() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		if err := p.ExecuteTemplate(w, "stats", p); err != nil {
			logError(w, err)
		}
	}
}

// Handler function for the websocket connection used to notify the client after each epoch
func (p *TrainPage) Websocket() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("websocket upgrade:", err)
			return
		}
		p.net.Lock()
		p.net.conn = conn
		p.net.Unlock()
	}
}

func (p *TrainPage) Headers() []string {
	return p.net.test.Headers
}

// LatestStats returns the most recent stats first
func (p *TrainPage) LatestStats(n int) []nnet.Stats {
	list := p.net.test.Stats
	res := []nnet.Stats{}
	for i := len(list) - 1; i >= 0 && i > len(list)-1-n; i-- {
		res = append(res, list[i])
	}
	return res
}

func (p *TrainPage) RunTime() string {
	list := p.net.test.Stats
	if len(list) == 0 {
		return ""
	}
	return "run time: " + list[len(list)-1].FormatElapsed()
}

// HistoryRow summarises the completed runs for one set of tuned parameters.
type HistoryRow struct {
	Params template.HTML
	Runs   int
	Epochs template.HTML
	Error  template.HTML
	Time   template.HTML
}

func (p *TrainPage) History() []HistoryRow {
	type group struct {
		runs   int
		epochs stats.Average
		error  stats.Average
		time   stats.Average
	}
	errIx := p.errorIndex()
	groups := map[string]*group{}
	order := []string{}
	for _, h := range p.net.History {
		key := tuneParams(h)
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.runs++
		g.epochs.Add(float64(h.Stats.Epoch))
		if errIx < len(h.Stats.Values) {
			g.error.Add(100 * h.Stats.Values[errIx])
		}
		g.time.Add(h.Stats.Elapsed.Seconds())
	}
	rows := make([]HistoryRow, len(order))
	for i, key := range order {
		g := groups[key]
		rows[i] = HistoryRow{
			Params: template.HTML(key),
			Runs:   g.runs,
			Epochs: g.epochs.HTML(),
			Error:  g.error.HTML(),
			Time:   g.time.HTML() + "s",
		}
	}
	return rows
}

// position of the test error in the stats values, or the last entry if no test set
func (p *TrainPage) errorIndex() int {
	for i, h := range p.net.test.Headers {
		if h == "test error" {
			return i
		}
	}
	return len(p.net.test.Headers) - 1
}

func (p *TrainPage) LossPlot(width, height int) template.HTML {
	plt := newPlot()
	line := newLinePlot(p.net.test.Stats, 0, 1, 0)
	plt.Add(line)
	plt.Legend.Add("training loss ", line)
	return writePlot(plt, width, height)
}

func (p *TrainPage) ErrorPlot(width, height int) template.HTML {
	plt := newPlot()
	for i, name := range p.Headers()[1:] {
		line := newLinePlot(p.net.test.Stats, i+1, 100, i)
		plt.Add(line)
		plt.Legend.Add(name+" % ", line)
	}
	return writePlot(plt, width, height)
}

func newPlot() *plot.Plot {
	p := plot.New()
	p.X.Padding, p.Y.Padding = 0, 0
	p.X.Tick.Label.Font.Size = vg.Points(10)
	p.Y.Tick.Label.Font.Size = vg.Points(10)
	p.Legend.Top = true
	p.Legend.TextStyle.Font.Size = vg.Points(12)
	p.Add(plotter.NewGrid())
	return p
}

func writePlot(p *plot.Plot, w, h int) template.HTML {
	writer, err := p.WriterTo(vg.Inch*vg.Length(w)/plotDPI, vg.Inch*vg.Length(h)/plotDPI, "svg")
	if err != nil {
		log.Println("error writing plot:", err)
		return ""
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		log.Println("error writing plot:", err)
		return ""
	}
	return template.HTML(buf.String())
}

// linePlot fixes the axis range so the scale does not jump between epochs
type linePlot struct {
	*plotter.Line
	xmin, xmax float64
	ymin, ymax float64
}

func newLinePlot(list []nnet.Stats, ix int, scale float64, cix int) linePlot {
	var pts plotter.XYs
	xmax, ymax := 2.0, 0.01
	for _, s := range list {
		if ix >= len(s.Values) {
			continue
		}
		x, y := float64(s.Epoch), s.Values[ix]*scale
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		if x > xmax {
			xmax = x
		}
		if y > ymax {
			ymax = y
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		line, _ = plotter.NewLine(plotter.XYs{})
	}
	line.LineStyle.Width = vg.Points(1)
	line.LineStyle.Color = plotutil.Color(cix)
	return linePlot{Line: line, xmin: 1, xmax: xmax, ymin: 0, ymax: ymax}
}

func (l linePlot) DataRange() (xmin, xmax, ymin, ymax float64) {
	return l.xmin, l.xmax, l.ymin, l.ymax
}
