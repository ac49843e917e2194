// Package templates loads labeled reference frames from disk and
// precomputes the histograms the classifier compares against (spec.md §3
// Template Store, §4.5).
package templates

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"msagent/internal/histogram"
	"msagent/internal/scenecfg"
)

// nameRe matches "<scene_name>_<digits>.<ext>"; the trailing _<digits> is
// stripped to recover the scene name, exactly as the source's
// rsplit("_", 1) + isdigit() check does.
var nameRe = regexp.MustCompile(`^(.+)_(\d+)$`)

// Store is the immutable-after-load registry of per-scene histograms: full
// frame histograms and, for scenes with declared regions, per-region
// histograms aligned 1:1 with the full list.
type Store struct {
	dir     string
	regions map[string][]scenecfg.Region

	full    map[string][]histogram.Histogram
	regionH map[string][][]histogram.Histogram // regionH[scene][regionIdx][templateIdx]
}

// ErrNoTemplates is returned by Load when the directory yields no usable images.
var ErrNoTemplates = fmt.Errorf("no templates found")

// Load walks dir for files named "<scene>_<digits>.{jpg,png}", groups them
// by scene, and computes full-frame and per-region histograms. Files that
// don't match the naming convention, or that fail to decode, are skipped
// with a log line rather than aborting the load.
func Load(dir string, regions map[string][]scenecfg.Region) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("templates: read dir %s: %w", dir, err)
	}

	type raw struct {
		scene string
		img   image.Image
	}
	var loaded []raw
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}
		base := e.Name()[:len(e.Name())-len(ext)]
		m := nameRe.FindStringSubmatch(base)
		if m == nil {
			log.Printf("[templates] skip %s: name does not match <scene>_<n>", e.Name())
			continue
		}
		if _, err := strconv.Atoi(m[2]); err != nil {
			log.Printf("[templates] skip %s: suffix not numeric", e.Name())
			continue
		}
		scene := m[1]

		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Printf("[templates] skip %s: %v", e.Name(), err)
			continue
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			log.Printf("[templates] skip %s: decode: %v", e.Name(), err)
			continue
		}
		loaded = append(loaded, raw{scene: scene, img: img})
	}

	grouped := map[string][]image.Image{}
	for _, r := range loaded {
		grouped[r.scene] = append(grouped[r.scene], r.img)
	}

	s := &Store{
		dir:     dir,
		regions: regions,
		full:    map[string][]histogram.Histogram{},
		regionH: map[string][][]histogram.Histogram{},
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		imgs := grouped[name]
		hists := make([]histogram.Histogram, len(imgs))
		for i, img := range imgs {
			hists[i] = histogram.Calc(img)
		}
		s.full[name] = hists

		if defs, ok := regions[name]; ok {
			perRegion := make([][]histogram.Histogram, len(defs))
			for ri, region := range defs {
				rh := make([]histogram.Histogram, len(imgs))
				for i, img := range imgs {
					rh[i] = histogram.Calc(region.Crop(img))
				}
				perRegion[ri] = rh
			}
			s.regionH[name] = perRegion
		}

		n := len(regions[name])
		if n > 0 {
			log.Printf("[templates] %-35s x%d  +%d regions", name, len(imgs), n)
		} else {
			log.Printf("[templates] %-35s x%d", name, len(imgs))
		}
	}

	if len(s.full) == 0 {
		return s, ErrNoTemplates
	}
	return s, nil
}

// Scenes returns the set of scene names with loaded templates, in sorted order.
func (s *Store) Scenes() []string {
	names := make([]string, 0, len(s.full))
	for name := range s.full {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Full returns the full-frame histograms for scene.
func (s *Store) Full(scene string) []histogram.Histogram {
	return s.full[scene]
}

// Regions returns the per-region histograms for scene (nil if scene has no
// declared regions), along with the region definitions themselves.
func (s *Store) Regions(scene string) ([]scenecfg.Region, [][]histogram.Histogram) {
	return s.regions[scene], s.regionH[scene]
}

// SaveSnapshot writes the frame produced by encode to dir as
// "<scene>_<n>.jpg", where n counts up from the number of templates loaded
// for scene to the first index whose file does not exist yet, supporting the developer workflow
// of growing the template set from a live ROI frame without restarting the
// detector (see SPEC_FULL.md's supplemented "snapshot-save" feature).
func (s *Store) SaveSnapshot(scene string, encode func(*os.File) error) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	next := len(s.full[scene])
	for {
		name := fmt.Sprintf("%s_%d.jpg", scene, next)
		path := filepath.Join(s.dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.Create(path)
			if err != nil {
				return "", err
			}
			defer f.Close()
			if err := encode(f); err != nil {
				return "", err
			}
			return path, nil
		}
		next++
	}
}
