// Package frame holds the external frame-source abstraction and the
// ROI-crop-then-resize step that turns a raw camera capture into the
// canonical 400x800 frame the classifier operates on (spec.md §4.8).
package frame

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/draw"

	"msagent/internal/scenecfg"
)

const (
	// CanonicalWidth and CanonicalHeight are the classifier's fixed input
	// frame size (spec.md §4.6).
	CanonicalWidth  = 400
	CanonicalHeight = 800
)

// ROI is the fixed normalized region of the raw camera frame containing
// the phone screen (spec.md §4.8).
var ROI = scenecfg.Region{X: 0.442, Y: 0.432, W: 0.126, H: 0.332}

// Source supplies raw camera frames. Actual camera acquisition is outside
// this repo's scope (spec.md Non-goals); implementations wrap whatever
// capture backend is available (webcam, capture card, ADB screen mirror).
type Source interface {
	Capture(ctx context.Context) (image.Image, error)
}

// DirSource cycles through image files in a directory in sorted-name order,
// one per Capture call, wrapping around at the end. It is a stand-in frame
// source for running the control loop against a folder of captured frames
// when no real camera/video collaborator is wired up (camera acquisition
// itself is an external collaborator; see Source).
type DirSource struct {
	paths []string
	next  int
}

// NewDirSource globs dir for *.jpg/*.jpeg/*.png files.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("frame: read dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("frame: no images found in %s", dir)
	}
	return &DirSource{paths: paths}, nil
}

// Capture decodes and returns the next image in the cycle.
func (d *DirSource) Capture(ctx context.Context) (image.Image, error) {
	path := d.paths[d.next%len(d.paths)]
	d.next++

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// Prepare crops raw to the fixed ROI and resizes it to the canonical
// 400x800 frame the classifier and template store expect.
func Prepare(raw image.Image) image.Image {
	cropped := ROI.Crop(raw)
	dst := image.NewRGBA(image.Rect(0, 0, CanonicalWidth, CanonicalHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), cropped, cropped.Bounds(), draw.Over, nil)
	return dst
}
