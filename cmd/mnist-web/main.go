// Command mnist-web serves the browser interface for training and inspecting models.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"strings"

	"digitgraph/img"
	"digitgraph/mnist"
	"digitgraph/nnet"
	"digitgraph/web"

	"github.com/gorilla/mux"
)

const (
	scale = 3
	rows  = 8
	cols  = 10
)

func main() {
	log.SetFlags(0)
	model := "mnist"
	if n := len(os.Args); n > 1 && !strings.HasPrefix(os.Args[n-1], "-") {
		model = os.Args[n-1]
	}
	addr := flag.String("addr", "localhost:8080", "web server listen address")
	flag.Parse()

	err := os.MkdirAll(nnet.DataDir, 0755)
	nnet.CheckErr(err)
	if !nnet.FileExists(model + ".net") {
		err = defaultConfig().SaveDefault(model)
		nnet.CheckErr(err)
	}
	dataDir := path.Join(nnet.DataDir, "mnist")
	err = mnist.Download(dataDir)
	nnet.CheckErr(err)
	train, test, err := mnist.Load(dataDir)
	nnet.CheckErr(err)
	mean, std := img.GetStats(append(train.Images, test.Images...))
	train.Normalise(mean, std)
	test.Normalise(mean, std)
	data := map[string]nnet.Data{"train": train, "test": test}

	net, err := web.NewNetwork(model, data)
	nnet.CheckErr(err)

	t, err := web.NewTemplates()
	nnet.CheckErr(err)
	for _, item := range []web.Link{
		{Url: "/train", Name: "train"},
		{Url: "/images/test/", Name: "images"},
		{Url: "/view", Name: "view"},
		{Url: "/config", Name: "config"},
	} {
		t.AddMenuItem(item)
	}

	trainPage := web.NewTrainPage(t.Clone(), net)
	imagePage := web.NewImagePage(t.Clone(), net, scale, rows, cols)
	viewPage := web.NewViewPage(t.Clone(), net)
	configPage := web.NewConfigPage(t.Clone(), net)

	r := mux.NewRouter()
	r.Handle("/", http.RedirectHandler("/train", http.StatusFound))
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", web.Static()))

	r.HandleFunc("/train", trainPage.Base())
	r.HandleFunc("/train/{cmd:(?:start|stop|continue)}", trainPage.Command())
	r.HandleFunc("/stats", trainPage.Stats())
	r.HandleFunc("/ws", trainPage.Websocket())

	r.Handle("/images", http.RedirectHandler("/images/test/", http.StatusFound))
	r.HandleFunc("/images/{dset}/", imagePage.Base())
	r.HandleFunc("/images/{dset}/{opt:(?:all|errors|prev|next|distort)}", imagePage.Setopt())
	r.HandleFunc("/images/{dset}/{class:[0-9]+}", imagePage.SetClass())
	r.HandleFunc("/img/{dset}/{id:[0-9]+}", imagePage.Image())

	r.HandleFunc("/view", viewPage.Base())
	r.HandleFunc("/net/weights/{layer:[0-9]+}", viewPage.Image())

	r.HandleFunc("/config", configPage.Base())
	r.HandleFunc("/config/load", configPage.Load())
	r.HandleFunc("/config/save", configPage.Save()).Methods("POST")
	r.HandleFunc("/config/reset", configPage.Reset())

	var handler http.Handler = r
	if os.Getenv("DIGITGRAPH_AUTH") != "" {
		handler = web.NewAuthMiddleware().Middleware(r)
	}
	fmt.Printf("serving web page at http://%s/\n", *addr)
	err = http.ListenAndServe(*addr, handler)
	nnet.CheckErr(err)
}

func defaultConfig() nnet.Config {
	return nnet.Config{
		DataSet:    "mnist",
		Eta:        0.1,
		Lambda:     3.0,
		TrainRuns:  1,
		MaxEpoch:   20,
		TrainBatch: 10,
		TestBatch:  100,
		Shuffle:    true,
		WeightInit: nnet.LecunNormal,
	}.AddLayers(
		nnet.Linear{Nout: 100},
		nnet.Activation{Atype: "relu"},
		nnet.Linear{Nout: 10},
		nnet.Activation{Atype: "softmax"},
	)
}
