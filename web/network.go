// Package web implements a browser based interface for training and inspecting networks.
package web

import (
	"encoding/gob"
	"fmt"
	"html/template"
	"log"
	"math/rand"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"digitgraph/img"
	"digitgraph/nnet"

	"github.com/gorilla/websocket"
)

var tuneOpts = []string{"Eta", "Lambda", "TrainBatch"}
var tuneOptHtml = []string{"&eta;", "&lambda;", "batch"}

// Network wraps the model currently being trained together with its data sets,
// latest predictions and the run history. Handlers and the background training
// goroutine share this state so exported methods expect the caller to hold the lock.
type Network struct {
	*NetworkData
	*nnet.Network
	Data      map[string]nnet.Data
	Labels    map[string][]int32
	test      *nnet.TestBase
	trans     *img.Transformer
	conn      *websocket.Conn
	trainData *nnet.Dataset
	rng       *rand.Rand
	testRng   *rand.Rand
	view      *viewData
	updated   bool
	running   bool
	stop      bool
	tuneMode  bool
	sync.Mutex
}

// Embedded structs used to persist state to file
type NetworkData struct {
	Model   string
	Conf    nnet.Config
	MaxRun  int
	Run     int
	Epoch   int
	Stats   []nnet.Stats
	Pred    map[string][]int32
	Params  []nnet.LayerData
	History []HistoryData
	Tuners  []TuneParams
}

type HistoryData struct {
	Stats nnet.Stats
	Conf  nnet.Config
}

type TuneParams struct {
	Name   string
	Values []string
}

// Create a new network for the given model using the data sets provided,
// loading any previously saved state from nnet.DataDir.
func NewNetwork(model string, data map[string]nnet.Data) (*Network, error) {
	n := &Network{test: nnet.NewTestBase(), Data: data}
	log.Println("load model:", model)
	var err error
	n.NetworkData, err = LoadNetwork(model, false)
	if err != nil {
		return nil, err
	}
	if err := n.Init(n.Conf); err != nil {
		return nil, err
	}
	if err := n.Import(); err != nil {
		return nil, err
	}
	return n, nil
}

// Initialise the network and data sets from the given config
func (n *Network) Init(conf nnet.Config) error {
	log.Printf("init network: model=%s dataSet=%s\n", n.Model, conf.DataSet)
	n.release()
	n.rng = nnet.SetSeed(conf.RandSeed)
	n.testRng = rand.New(rand.NewSource(n.rng.Int63()))
	for _, key := range nnet.DataTypes {
		if d, ok := n.Data[key].(*img.Data); ok {
			d.SetNorm(conf.Normalise)
		}
	}
	n.trainData = nnet.NewDataset(n.Data["train"], conf.TrainBatch, conf.MaxSamples, n.rng)
	var err error
	n.Network, err = nnet.New(conf, n.trainData.BatchSize, n.trainData.Shape(), len(n.trainData.Classes()), true, n.rng)
	if err != nil {
		return err
	}
	if n.DebugLevel >= 1 {
		fmt.Println(n.Network)
	}
	if _, err = n.test.Init(conf, n.Data, n.testRng); err != nil {
		return err
	}
	n.test.Predict()
	n.Labels = make(map[string][]int32)
	for key, dset := range n.test.Data {
		n.Labels[key] = make([]int32, dset.Samples)
		dset.Label(seq(dset.Samples), n.Labels[key])
	}
	if d, ok := n.Data["train"].(*img.Data); ok {
		n.trans = img.NewTransformer(d, img.GrayTrans, n.testRng)
		if conf.Distort {
			trans := img.GrayTrans
			if conf.Normalise {
				// distorted batches bypass Data.Input so scale them here
				trans |= img.Normalise
			}
			n.trainData.SetTrans(img.NewTransformer(d, trans, n.rng))
		}
	}
	n.view = newViewData(n.Network)
	return nil
}

// release the tape machines from the previous run
func (n *Network) release() {
	if n.Network != nil {
		n.Network.Close()
	}
	if n.test != nil && n.test.Net != nil {
		n.test.Net.Close()
	}
}

// Initialise for new training run
func (n *Network) Start(conf nnet.Config, lock bool) error {
	if lock {
		n.Lock()
		defer n.Unlock()
	}
	if err := n.Init(conf); err != nil {
		return err
	}
	n.test.Reset()
	n.view.update(n.Network)
	n.Epoch = 0
	n.updated = false
	return nil
}

// Update the base config for the next training run
func (n *Network) UpdateConfig(conf nnet.Config) {
	n.Conf = conf
	n.updated = true
}

// Request the training goroutine to halt after the current epoch
func (n *Network) Stop() {
	if n.running {
		n.stop = true
	}
}

// Perform training run in the background
func (n *Network) Train(restart bool) error {
	log.Printf("train %s: restart=%v\n", n.Model, restart)
	runs := []nnet.Config{n.Conf}
	if n.tuneMode {
		runs = getRunConfig(n.Conf, n.Tuners)
	}
	n.MaxRun = len(runs)
	if restart {
		if n.Epoch != 0 || n.Run != 0 || n.updated {
			n.Run = 0
			if err := n.Start(runs[0], false); err != nil {
				return err
			}
		}
		n.Epoch = 1
	} else if n.Epoch > 0 {
		n.Epoch++
	}
	if n.Epoch == 0 || n.Epoch > n.MaxEpoch {
		return nil
	}
	n.running = true
	n.stop = false
	go n.trainLoop(runs)
	return nil
}

func (n *Network) trainLoop(runs []nnet.Config) {
	quit := false
	for n.Run < n.MaxRun && !quit {
		if n.Run > 0 {
			if err := n.Start(runs[n.Run], true); err != nil {
				n.fail(err)
				return
			}
			n.Epoch = 1
		}
		log.Printf("train run %d / %d epoch=%d\n", n.Run+1, n.MaxRun, n.Epoch)
		epoch := n.Epoch
		done := false
		start := time.Now()
		for !done && !quit {
			loss, err := nnet.TrainEpoch(n.Network, n.trainData)
			if err != nil {
				n.fail(err)
				return
			}
			if done, err = n.test.Test(n.Network, epoch, loss, start); err != nil {
				n.fail(err)
				return
			}
			epoch, quit = n.nextEpoch(epoch, done)
		}
		if last := len(n.test.Stats) - 1; last >= 0 {
			s := n.test.Stats[last]
			msg := fmt.Sprintf("run %d epoch %d:", n.Run+1, s.Epoch)
			for i, val := range s.Format() {
				msg += fmt.Sprintf("  %s =%s", n.test.Headers[i], val)
			}
			log.Println(msg)
		}
		if !quit {
			n.Run++
		}
	}
	n.Lock()
	n.running = false
	n.stop = false
	n.Unlock()
	log.Println("train: end - quit =", quit)
}

// log the error and halt training
func (n *Network) fail(err error) {
	log.Println("train error:", err)
	n.Lock()
	n.running = false
	n.stop = false
	n.Unlock()
}

func (n *Network) nextEpoch(epoch int, done bool) (int, bool) {
	quit := false
	n.Lock()
	n.Epoch = epoch
	// check for interrupt
	if n.stop {
		n.stop = false
		n.running = false
		quit = true
	}
	// update predictions for each image
	for key, pred := range n.test.Pred {
		if arr, ok := n.Pred[key]; !ok || len(arr) != len(pred) {
			n.Pred[key] = make([]int32, len(pred))
		}
		copy(n.Pred[key], pred)
	}
	// update weight visualisation
	n.view.update(n.test.Net)
	// update history
	if done && !quit && len(n.test.Stats) > 0 {
		n.History = append(n.History, HistoryData{
			Stats: n.test.Stats[len(n.test.Stats)-1],
			Conf:  n.Config,
		})
	}
	n.Unlock()
	// notify monitor page via websocket
	if n.conn != nil {
		msg := []byte(strconv.Itoa(n.Run+1) + ":" + strconv.Itoa(epoch))
		if err := n.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Println("nextEpoch: error writing to websocket", err)
		}
	}
	// save state to disk
	n.Lock()
	n.Export()
	err := SaveNetwork(n.NetworkData)
	if done && !quit {
		ckpt := nnet.NewCheckpoint(n.Model, n.test.Net, n.test.Stats, epoch)
		if err := nnet.SaveCheckpoint(ckpt); err != nil {
			log.Println("nextEpoch: error saving checkpoint:", err)
		}
	}
	n.Unlock()
	if err != nil {
		log.Println("nextEpoch: error saving network:", err)
	}
	return epoch + 1, quit
}

func (n *Network) heading() template.HTML {
	s := fmt.Sprintf(`%s: run <span id="run">%d</span>/%d  epoch <span id="epoch">%d</span>/%d`,
		n.Model, n.Run+1, n.MaxRun, n.Epoch, n.MaxEpoch)
	return template.HTML(s)
}

// Export current state prior to saving to file
func (n *Network) Export() {
	n.Stats = n.test.Stats
	if n.test.Net != nil {
		n.Params = n.test.Net.ExportParams()
	}
}

// Import the saved weights after loading from file
func (n *Network) Import() error {
	n.test.Stats = n.Stats
	if n.Epoch == 0 || len(n.Params) == 0 {
		return nil
	}
	log.Println("import weights")
	if err := n.ImportParams(n.Params); err != nil {
		log.Println("import weights:", err)
		return nil
	}
	if err := n.CopyWeightsTo(n.test.Net); err != nil {
		return err
	}
	n.view.update(n.test.Net)
	return nil
}

// Encode state in gob format and save to file under nnet.DataDir
func SaveNetwork(data *NetworkData) error {
	filePath := path.Join(nnet.DataDir, "."+data.Model+".state")
	f, err := os.Create(filePath)
	if err != nil {
		return err
	}
	if err = gob.NewEncoder(f).Encode(data); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(filePath, path.Join(nnet.DataDir, data.Model+".state"))
}

// Remove any saved state so the next run starts from scratch
func ResetNetwork(model string) error {
	err := os.Remove(path.Join(nnet.DataDir, model+".state"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Read back the gob encoded state file, or if not found or reset is set
// then start afresh from the json network config.
func LoadNetwork(model string, reset bool) (data *NetworkData, err error) {
	data = &NetworkData{
		Model:   model,
		MaxRun:  1,
		Stats:   []nnet.Stats{},
		Pred:    map[string][]int32{},
		Params:  []nnet.LayerData{},
		History: []HistoryData{},
	}
	if !reset {
		if err = loadGob(model+".state", data); err != nil {
			reset = true
		}
	}
	if reset {
		if data.Conf, err = nnet.LoadConfig(model + ".net"); err != nil {
			return nil, err
		}
	}
	if data.Tuners == nil {
		for _, opt := range tuneOpts {
			data.Tuners = append(data.Tuners, TuneParams{
				Name:   opt,
				Values: []string{fmt.Sprint(data.Conf.Get(opt))},
			})
		}
	}
	return data, nil
}

func loadGob(name string, data *NetworkData) error {
	filePath := path.Join(nnet.DataDir, name)
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	log.Println("loading network state from", name)
	return gob.NewDecoder(f).Decode(data)
}

// For hyperparameter tuning, expand the config into one per combination of the tuning values
func getRunConfig(conf nnet.Config, params []TuneParams) []nnet.Config {
	for _, p := range params {
		conf = setConfig(conf, p.Name, p.Values[0])
	}
	logConfig(conf)
	list := permute(conf, params, len(params)-1, []nnet.Config{conf})
	runs := conf.TrainRuns
	if runs < 1 {
		runs = 1
	}
	log.Printf("getRunConfig: runs=%d cases=%d\n", runs, len(list))
	res := []nnet.Config{}
	for run := 0; run < runs; run++ {
		res = append(res, list...)
	}
	return res
}

func permute(conf nnet.Config, params []TuneParams, n int, list []nnet.Config) []nnet.Config {
	if n < 0 {
		return list
	}
	for i, val := range params[n].Values {
		if i > 0 {
			conf = setConfig(conf, params[n].Name, val)
			logConfig(conf)
			list = append(list, conf)
		}
		list = permute(conf, params, n-1, list)
	}
	return list
}

func setConfig(c nnet.Config, name string, val string) nnet.Config {
	var err error
	c, err = c.SetString(name, val)
	if err != nil {
		panic(err)
	}
	return c
}

func logConfig(c nnet.Config) {
	var s string
	for _, name := range tuneOpts {
		s += fmt.Sprintf("%s=%v ", name, c.Get(name))
	}
	log.Println("getRunConfig:", s)
}

func tuneParams(h HistoryData) string {
	plist := make([]string, len(tuneOpts))
	for i, p := range tuneOpts {
		plist[i] = fmt.Sprintf("%s=%v", tuneOptHtml[i], h.Conf.Get(p))
	}
	return strings.Join(plist, " ")
}
