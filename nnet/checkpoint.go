package nnet

import (
	"encoding/gob"
	"fmt"
	"os"
	"path"

	"github.com/pkg/errors"
)

// Checkpoint holds a snapshot of a training run which can be written to disk
// and restored later to evaluate the model or carry on training.
type Checkpoint struct {
	Model  string
	Conf   Config
	Epoch  int
	Stats  []Stats
	Params []LayerData
}

// NewCheckpoint captures the current state of the network.
func NewCheckpoint(model string, net *Network, stats []Stats, epoch int) *Checkpoint {
	return &Checkpoint{
		Model:  model,
		Conf:   net.Config,
		Epoch:  epoch,
		Stats:  append([]Stats{}, stats...),
		Params: net.ExportParams(),
	}
}

// Apply restores the saved weights into the network.
func (c *Checkpoint) Apply(net *Network) error {
	return net.ImportParams(c.Params)
}

// Encode in gob format and save to file under DataDir
func SaveCheckpoint(c *Checkpoint) error {
	filePath := path.Join(DataDir, "."+c.Model+".ckpt")
	f, err := os.Create(filePath)
	if err != nil {
		return err
	}
	if err = gob.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(filePath, path.Join(DataDir, c.Model+".ckpt"))
}

// Decode checkpoint from gob format file under DataDir
func LoadCheckpoint(model string) (*Checkpoint, error) {
	filePath := path.Join(DataDir, model+".ckpt")
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fmt.Println("loading checkpoint from", model+".ckpt")
	c := new(Checkpoint)
	if err := gob.NewDecoder(f).Decode(c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// each param entry should match a layer from the config
func (c *Checkpoint) validate() error {
	for _, p := range c.Params {
		if p.Layer < 0 || p.Layer >= len(c.Conf.Layers) {
			return errors.Errorf("checkpoint: no layer %d in config", p.Layer)
		}
		if len(p.W) == 0 {
			return errors.Errorf("checkpoint: layer %d has no weights", p.Layer)
		}
	}
	return nil
}
