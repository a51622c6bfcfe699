package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/tillworks/scanpipe/scan"
)

// imageDirDevice stands in for a camera on the bench: it replays the still
// images found in a directory, one per tick, then ends the stream. Point
// camera_dir at a folder of barcode photos and the pipeline exercises the
// whole decode path without hardware.
type imageDirDevice struct {
	dir      string
	interval time.Duration
}

func newImageDirDevice(dir string, interval time.Duration) *imageDirDevice {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &imageDirDevice{dir: dir, interval: interval}
}

func (d *imageDirDevice) Open(_ context.Context, _ scan.CameraConstraints) (scan.CameraStream, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(d.dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images in %s", d.dir)
	}
	sort.Strings(paths)

	s := &imageDirStream{ch: make(chan scan.Frame), done: make(chan struct{})}
	go s.play(paths, d.interval)
	return s, nil
}

type imageDirStream struct {
	ch   chan scan.Frame
	done chan struct{}
	once sync.Once
}

func (s *imageDirStream) play(paths []string, interval time.Duration) {
	defer close(s.ch)
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var seq uint64
	for _, path := range paths {
		img, err := loadImage(path)
		if err != nil {
			continue
		}
		seq++
		select {
		case s.ch <- scan.Frame{Image: img, Seq: seq, At: time.Now()}:
		case <-s.done:
			return
		}
		select {
		case <-tick.C:
		case <-s.done:
			return
		}
	}
}

func (s *imageDirStream) Frames() <-chan scan.Frame { return s.ch }

func (s *imageDirStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
