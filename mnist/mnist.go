// Package mnist downloads and decodes the MNIST database of handwritten digits.
package mnist

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"digitgraph/img"

	"github.com/pkg/errors"
)

// BaseURL is the mirror used to fetch the data files.
var BaseURL = "https://storage.googleapis.com/cvdf-datasets/mnist/"

// Classes are the digit labels in order.
var Classes = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}

const (
	imageMagic = 2051
	labelMagic = 2049
)

type labelHeader struct{ Magic, Num uint32 }

type imageHeader struct{ Magic, Num, Rows, Cols uint32 }

type dataFile struct {
	name string
	sum  string
}

var dataFiles = []dataFile{
	{"train-images-idx3-ubyte.gz", "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609"},
	{"train-labels-idx1-ubyte.gz", "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c"},
	{"t10k-images-idx3-ubyte.gz", "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6"},
	{"t10k-labels-idx1-ubyte.gz", "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6"},
}

// Download fetches any data files missing from dir and verifies their checksums.
func Download(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, file := range dataFiles {
		pathName := path.Join(dir, file.name)
		if _, err := os.Stat(pathName); err == nil {
			if err := checksum(pathName, file.sum); err == nil {
				continue
			}
		}
		if err := fetch(BaseURL+file.name, pathName); err != nil {
			return err
		}
		if err := checksum(pathName, file.sum); err != nil {
			return err
		}
	}
	return nil
}

func fetch(url, pathName string) error {
	fmt.Println("download", url)
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("download %s: status %s", url, resp.Status)
	}
	f, err := os.Create(pathName)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

func checksum(pathName, expect string) error {
	f, err := os.Open(pathName)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if sum := fmt.Sprintf("%x", h.Sum(nil)); sum != expect {
		return errors.Errorf("checksum mismatch for %s: have %s", path.Base(pathName), sum)
	}
	return nil
}

// Load reads the 60000 image training set and 10000 image test set from dir.
func Load(dir string) (train, test *img.Data, err error) {
	if train, err = loadSet(dir, dataFiles[0].name, dataFiles[1].name); err != nil {
		return
	}
	test, err = loadSet(dir, dataFiles[2].name, dataFiles[3].name)
	return
}

// DataSets loads the data and splits off the last validSamples training images
// as a validation set. valid is nil when no split is requested.
func DataSets(dir string, validSamples int) (train, valid, test *img.Data, err error) {
	if train, test, err = Load(dir); err != nil {
		return
	}
	if validSamples > 0 && validSamples < train.Len() {
		valid = train.Slice(train.Len()-validSamples, train.Len())
		train = train.Slice(0, train.Len()-validSamples)
	}
	return
}

func loadSet(dir, imageFile, labelFile string) (*img.Data, error) {
	images, err := readImages(path.Join(dir, imageFile))
	if err != nil {
		return nil, err
	}
	labels, err := readLabels(path.Join(dir, labelFile))
	if err != nil {
		return nil, err
	}
	if len(images) != len(labels) {
		return nil, errors.Errorf("mnist: %d images but %d labels", len(images), len(labels))
	}
	return img.NewData(Classes, labels, images), nil
}

func readImages(pathName string) ([]*img.GrayImage, error) {
	f, err := os.Open(pathName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if path.Ext(pathName) == ".gz" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, pathName)
		}
		defer gz.Close()
		r = gz
	}
	var head imageHeader
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, errors.Wrap(err, pathName)
	}
	if head.Magic != imageMagic {
		return nil, errors.Errorf("%s: invalid magic number %d", path.Base(pathName), head.Magic)
	}
	n, h, w := int(head.Num), int(head.Rows), int(head.Cols)
	fmt.Printf("read %d %dx%d images from %s\n", n, h, w, path.Base(pathName))
	images := make([]*img.GrayImage, n)
	pixels := make([]byte, w*h)
	for i := range images {
		if _, err := io.ReadFull(r, pixels); err != nil {
			return nil, errors.Wrap(err, pathName)
		}
		images[i] = img.NewGrayBytes(w, h, pixels)
	}
	return images, nil
}

func readLabels(pathName string) ([]int32, error) {
	f, err := os.Open(pathName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if path.Ext(pathName) == ".gz" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, pathName)
		}
		defer gz.Close()
		r = gz
	}
	var head labelHeader
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, errors.Wrap(err, pathName)
	}
	if head.Magic != labelMagic {
		return nil, errors.Errorf("%s: invalid magic number %d", path.Base(pathName), head.Magic)
	}
	fmt.Printf("read %d labels from %s\n", head.Num, path.Base(pathName))
	bytes := make([]byte, head.Num)
	if _, err := io.ReadFull(r, bytes); err != nil {
		return nil, errors.Wrap(err, pathName)
	}
	labels := make([]int32, head.Num)
	for i, label := range bytes {
		labels[i] = int32(label)
	}
	return labels, nil
}
