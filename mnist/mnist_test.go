package mnist

import (
	"compress/gzip"
	"encoding/binary"
	"os"
	"path"
	"testing"
)

func writeImageFile(t *testing.T, dir, name string, magic, rows, cols int, images [][]byte) {
	t.Helper()
	f, err := os.Create(path.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	defer gz.Close()
	head := imageHeader{Magic: uint32(magic), Num: uint32(len(images)), Rows: uint32(rows), Cols: uint32(cols)}
	if err := binary.Write(gz, binary.BigEndian, &head); err != nil {
		t.Fatal(err)
	}
	for _, pix := range images {
		if _, err := gz.Write(pix); err != nil {
			t.Fatal(err)
		}
	}
}

func writeLabelFile(t *testing.T, dir, name string, magic int, labels []byte) {
	t.Helper()
	f, err := os.Create(path.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	defer gz.Close()
	head := labelHeader{Magic: uint32(magic), Num: uint32(len(labels))}
	if err := binary.Write(gz, binary.BigEndian, &head); err != nil {
		t.Fatal(err)
	}
	if _, err := gz.Write(labels); err != nil {
		t.Fatal(err)
	}
}

func testImages(n, rows, cols int) [][]byte {
	images := make([][]byte, n)
	for i := range images {
		pix := make([]byte, rows*cols)
		for j := range pix {
			pix[j] = byte((i*j + i) % 256)
		}
		images[i] = pix
	}
	return images
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeImageFile(t, dir, dataFiles[0].name, imageMagic, 4, 5, testImages(3, 4, 5))
	writeLabelFile(t, dir, dataFiles[1].name, labelMagic, []byte{7, 0, 9})
	writeImageFile(t, dir, dataFiles[2].name, imageMagic, 4, 5, testImages(2, 4, 5))
	writeLabelFile(t, dir, dataFiles[3].name, labelMagic, []byte{1, 2})

	train, test, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if train.Len() != 3 || test.Len() != 2 {
		t.Fatalf("expected 3 train and 2 test entries, got %d and %d", train.Len(), test.Len())
	}
	shape := train.Shape()
	if shape[0] != 4 || shape[1] != 5 || shape[2] != 1 {
		t.Errorf("expected shape [4 5 1], got %v", shape)
	}
	labels := make([]int32, 3)
	train.Label([]int{0, 1, 2}, labels)
	for i, expect := range []int32{7, 0, 9} {
		if labels[i] != expect {
			t.Errorf("label %d: expected %d, got %d", i, expect, labels[i])
		}
	}
	// image 2 pixel 10 was written as (2*10+2)%256 = 22
	if pix := train.Images[2].Pix[10]; pix != 22.0/255 {
		t.Errorf("expected pixel value %f, got %f", 22.0/255, pix)
	}
	if len(train.Classes()) != 10 {
		t.Errorf("expected 10 classes, got %d", len(train.Classes()))
	}
}

func TestBadMagic(t *testing.T) {
	dir := t.TempDir()
	writeLabelFile(t, dir, "labels.gz", 1234, []byte{1, 2, 3})
	if _, err := readLabels(path.Join(dir, "labels.gz")); err == nil {
		t.Error("expected invalid magic number error")
	}
	writeImageFile(t, dir, "images.gz", 4321, 2, 2, testImages(1, 2, 2))
	if _, err := readImages(path.Join(dir, "images.gz")); err == nil {
		t.Error("expected invalid magic number error")
	}
}

func TestCountMismatch(t *testing.T) {
	dir := t.TempDir()
	writeImageFile(t, dir, "images.gz", imageMagic, 2, 2, testImages(4, 2, 2))
	writeLabelFile(t, dir, "labels.gz", labelMagic, []byte{1, 2, 3})
	if _, err := loadSet(dir, "images.gz", "labels.gz"); err == nil {
		t.Error("expected image and label count mismatch error")
	}
}

func TestChecksum(t *testing.T) {
	dir := t.TempDir()
	pathName := path.Join(dir, "data.gz")
	if err := os.WriteFile(pathName, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	// sha256 of "hello"
	sum := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if err := checksum(pathName, sum); err != nil {
		t.Error(err)
	}
	if err := checksum(pathName, "0000"); err == nil {
		t.Error("expected checksum mismatch error")
	}
}
