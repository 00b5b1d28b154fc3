package web

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"digitgraph/nnet"
)

// ConfigPage has handlers to view and update the network configuration.
type ConfigPage struct {
	*Templates
	Fields   []Field
	Layers   []LayerDesc
	TuneMode bool
	Tuners   []TuneField
	net      *Network
}

type Field struct {
	Name    string
	Value   string
	Error   string
	Boolean bool
	On      bool
}

type LayerDesc struct {
	Index int
	Desc  string
}

type TuneField struct {
	Name   string
	Values string
	Error  string
}

// Base data for handler functions to view and update the network config
func NewConfigPage(t *Templates, net *Network) *ConfigPage {
	p := &ConfigPage{net: net, Templates: t.Select("/config")}
	p.AddOption(Link{Name: "save", Url: "/config/save", Submit: true})
	p.AddOption(Link{Name: "reset", Url: "/config/reset"})
	p.refresh()
	return p
}

// reload the form fields from the current config
func (p *ConfigPage) refresh() {
	p.Fields = getFields(p.net.Conf)
	p.Layers = getLayers(p.net.Conf)
	p.TuneMode = p.net.tuneMode
	p.Tuners = make([]TuneField, len(p.net.Tuners))
	for i, t := range p.net.Tuners {
		p.Tuners[i] = TuneField{Name: t.Name, Values: strings.Join(t.Values, ",")}
	}
}

// Handler function for the config template
func (p *ConfigPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.Heading = p.net.heading()
		p.Dropdown = p.models()
		if err := p.ExecuteTemplate(w, "config", p); err != nil {
			logError(w, err)
		}
	}
}

// Handler function to update the config from the submitted form
func (p *ConfigPage) Save() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		if err := r.ParseForm(); err != nil {
			logError(w, err)
			return
		}
		haveError := false
		conf := p.net.Conf
		var err error
		for i, fld := range p.Fields {
			val := r.Form.Get(fld.Name)
			if fld.Boolean {
				p.Fields[i].On = val == "true"
				conf, err = conf.SetBool(fld.Name, p.Fields[i].On)
			} else {
				p.Fields[i].Value = val
				conf, err = conf.SetString(fld.Name, val)
			}
			p.Fields[i].Error = ""
			if err != nil {
				p.Fields[i].Error = "invalid syntax"
				haveError = true
			}
		}
		p.TuneMode = r.Form.Get("TuneMode") == "true"
		for i := range p.Tuners {
			if !p.setTuner(i, conf, r.Form.Get("tune"+p.Tuners[i].Name)) {
				haveError = true
			}
		}
		if !haveError {
			p.net.tuneMode = p.TuneMode
			if err := conf.Save(p.net.Model + ".net"); err != nil {
				logError(w, err)
				return
			}
			p.net.UpdateConfig(conf)
		}
		http.Redirect(w, r, "/config", http.StatusFound)
	}
}

// parse and validate the list of values to tune over
func (p *ConfigPage) setTuner(i int, conf nnet.Config, val string) bool {
	p.Tuners[i].Values = val
	p.Tuners[i].Error = ""
	var values []string
	for _, v := range strings.Split(val, ",") {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		if _, err := conf.SetString(p.Tuners[i].Name, v); err != nil {
			p.Tuners[i].Error = "invalid syntax"
			return false
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		values = []string{fmt.Sprint(conf.Get(p.Tuners[i].Name))}
	}
	p.net.Tuners[i].Values = values
	return true
}

// Handler function to restore the default config and clear any saved state
func (p *ConfigPage) Reset() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		if p.net.running {
			http.Redirect(w, r, "/config", http.StatusFound)
			return
		}
		conf, err := nnet.LoadConfig(p.net.Model + ".default")
		if err != nil {
			logError(w, err)
			return
		}
		if err = conf.Save(p.net.Model + ".net"); err != nil {
			logError(w, err)
			return
		}
		if err = ResetNetwork(p.net.Model); err != nil {
			logError(w, err)
			return
		}
		data, err := LoadNetwork(p.net.Model, true)
		if err != nil {
			logError(w, err)
			return
		}
		p.net.NetworkData = data
		if err = p.net.Start(conf, false); err != nil {
			logError(w, err)
			return
		}
		p.refresh()
		http.Redirect(w, r, "/config", http.StatusFound)
	}
}

// Handler function to switch to a different model
func (p *ConfigPage) Load() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		model := r.FormValue("model")
		if model == "" || p.net.running {
			http.Redirect(w, r, "/config", http.StatusFound)
			return
		}
		data, err := LoadNetwork(model, false)
		if err != nil {
			logError(w, err)
			return
		}
		p.net.NetworkData = data
		if err := p.net.Init(data.Conf); err != nil {
			logError(w, err)
			return
		}
		if err := p.net.Import(); err != nil {
			logError(w, err)
			return
		}
		p.refresh()
		http.Redirect(w, r, "/config", http.StatusFound)
	}
}

// list the saved models from the data dir for the dropdown
func (p *ConfigPage) models() []Link {
	files, err := os.ReadDir(nnet.DataDir)
	if err != nil {
		log.Println("error listing models:", err)
		return nil
	}
	var links []Link
	for _, file := range files {
		name := file.Name()
		if strings.HasSuffix(name, ".net") && !strings.HasPrefix(name, ".") {
			name = strings.TrimSuffix(name, ".net")
			links = append(links, Link{Name: name, Url: "/config/load?model=" + name, Selected: name == p.net.Model})
		}
	}
	return links
}

func getFields(conf nnet.Config) []Field {
	var flds []Field
	for _, key := range conf.Fields() {
		f := Field{Name: key, Value: fmt.Sprint(conf.Get(key))}
		f.On, f.Boolean = conf.Get(key).(bool)
		flds = append(flds, f)
	}
	return flds
}

func getLayers(conf nnet.Config) []LayerDesc {
	var layers []LayerDesc
	for i, l := range conf.Layers {
		layers = append(layers, LayerDesc{Index: i, Desc: l.String()})
	}
	return layers
}
