// Package scenecfg holds the process-wide scene region and rival-scene
// registries (spec.md §3 Region, Rival config) plus the tunable constants
// scattered through the HID/FSM sections. Values load from an optional
// YAML document and fall back to the literal defaults in spec.md, following
// the same viper-unmarshal-then-yaml-remarshal shape the teacher uses for
// its training config (see reinforcement.FromYaml in the source this repo
// was built from): an outer viper document is read, its "def" node is
// re-marshaled to YAML, and unmarshaled again into the concrete struct so
// viper's loose decoding doesn't have to know our exact schema up front.
package scenecfg

import (
	"image"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Region is a rectangle in normalized coordinates relative to the canonical
// 400x800 output frame.
type Region struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// subImager is implemented by the standard library's concrete image types.
type subImager interface {
	SubImage(image.Rectangle) image.Image
}

// Crop returns the portion of img this region names, in pixel coordinates
// relative to img's own bounds. If img does not support sub-imaging, img is
// returned unchanged.
func (r Region) Crop(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	x1 := b.Min.X + int(float64(w)*r.X)
	y1 := b.Min.Y + int(float64(h)*r.Y)
	x2 := b.Min.X + int(float64(w)*(r.X+r.W))
	y2 := b.Min.Y + int(float64(h)*(r.Y+r.H))
	rect := image.Rect(x1, y1, x2, y2).Intersect(b)
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	return img
}

// Rival describes a disambiguation rule between two visually similar scenes.
type Rival struct {
	Scene             string  `yaml:"scene"`
	RivalScene        string  `yaml:"rival"`
	KeyRegionIndex    int     `yaml:"keyRegionIndex"`
	OtherRegionIdxs   []int   `yaml:"otherRegionIndices"`
	Weight            float64 `yaml:"weight"`
}

// Tuning holds the numeric constants spec.md pins to specific default
// values (§4.1 HID Transport, §4.4 Calibrator, §4.7 State Machine).
type Tuning struct {
	MaxDelta          int     `yaml:"maxDelta"`
	BatchMin          int     `yaml:"batchMin"`
	BatchMax          int     `yaml:"batchMax"`
	PadMin            int     `yaml:"padMin"`
	PadMax            int     `yaml:"padMax"`
	MoveDelay         float64 `yaml:"moveDelaySeconds"`
	ClickHold         float64 `yaml:"clickHoldSeconds"`
	ResetSweep        int     `yaml:"resetSweep"`
	ScanStep          int     `yaml:"scanStep"`
	MaxScanIterations int     `yaml:"maxScanIterations"`
	FSMConfirmCount   int     `yaml:"fsmConfirmCount"`
	PlayTurnInterval  float64 `yaml:"playTurnIntervalSeconds"`
	DragSteps         int     `yaml:"dragSteps"`
}

// DefaultTuning matches spec.md's literal defaults exactly.
func DefaultTuning() Tuning {
	return Tuning{
		MaxDelta:          10,
		BatchMin:          6,
		BatchMax:          14,
		PadMin:            0,
		PadMax:            32,
		MoveDelay:         0.13,
		ClickHold:         0.15,
		ResetSweep:        500,
		ScanStep:          10,
		MaxScanIterations: 500,
		FSMConfirmCount:   3,
		PlayTurnInterval:  5.0,
		DragSteps:         20,
	}
}

// Config is the full process-wide scene/rival/tuning registry.
type Config struct {
	Regions map[string][]Region `yaml:"regions"`
	Rivals  []Rival             `yaml:"rivals"`
	Tuning  Tuning              `yaml:"tuning"`
}

// Default returns the hardcoded registry matching spec.md §3/§4.6 exactly:
// the SCENE_REGIONS and SCENE_CUSTOMS tables from the original scene
// detector, plus default tuning constants.
func Default() Config {
	return Config{
		Regions: map[string][]Region{
			"home": {
				{0.01, 0.75, 0.32, 0.07},
				{0.37, 0.73, 0.26, 0.10},
				{0.66, 0.75, 0.32, 0.07},
				{0.01, 0.91, 0.98, 0.07}, // home bar
			},
			"event": {
				{0.19, 0.59, 0.15, 0.08},
				{0.39, 0.58, 0.24, 0.12},
				{0.68, 0.59, 0.15, 0.08},
				{0.01, 0.91, 0.98, 0.07}, // home bar
			},
			"quest": {
				{0.16, 0.57, 0.23, 0.12},
				{0.44, 0.60, 0.15, 0.08},
				{0.68, 0.59, 0.15, 0.08},
				{0.01, 0.91, 0.98, 0.07}, // home bar
			},
			"normal-quest-uijin-karyu": {
				{0.1, 0.47, 0.35, 0.20},
				{0.52, 0.47, 0.35, 0.20},
				{0.01, 0.91, 0.98, 0.07}, // home bar
			},
			"normal-quest": {
				{0.02, 0.12, 0.59, 0.045},
				{0.04, 0.22, 0.73, 0.07},
				{0.04, 0.352, 0.73, 0.07},
				{0.04, 0.482, 0.73, 0.07},
				{0.04, 0.612, 0.73, 0.07},
				{0.04, 0.742, 0.73, 0.07},
				{0.01, 0.91, 0.98, 0.07}, // home bar
			},
			"normal-quest-uijin": {
				{0.02, 0.12, 0.59, 0.045},
				{0.04, 0.204, 0.73, 0.07},
				{0.08, 0.312, 0.71, 0.07},
				{0.08, 0.408, 0.71, 0.07},
				{0.08, 0.504, 0.71, 0.07},
				{0.01, 0.91, 0.98, 0.07}, // home bar
			},
			"helper-select": {
				{0.02, 0.12, 0.46, 0.045},
				{0.14, 0.17, 0.78, 0.065},
				{0.01, 0.91, 0.98, 0.07}, // home bar
			},
			"deck-select": {
				{0.02, 0.12, 0.46, 0.045},
				{0.06, 0.36, 0.82, 0.198},
				{0.01, 0.91, 0.98, 0.07}, // home bar
			},
			"special-reward": {
				{0.18, 0.00, 0.70, 0.044},
			},
			"reward-next": {
				{0.01, 0.91, 0.98, 0.07},
			},
		},
		Rivals: []Rival{
			{Scene: "quest", RivalScene: "event", KeyRegionIndex: 0, OtherRegionIdxs: []int{1, 2}, Weight: 0.5},
			{Scene: "event", RivalScene: "quest", KeyRegionIndex: 1, OtherRegionIdxs: []int{0, 2}, Weight: 0.5},
		},
		Tuning: DefaultTuning(),
	}
}

// outerDoc mirrors the teacher's OuterConfig{Kind, Def} wrapper shape.
type outerDoc struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// Load reads path (a YAML file) and overlays it on Default(). Any section
// (regions, rivals, tuning) the file omits keeps its default. An empty path
// returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return Config{}, err
	}

	outer := &outerDoc{}
	if err := vp.Unmarshal(outer); err != nil {
		return Config{}, err
	}

	raw, err := yaml.Marshal(outer.Def)
	if err != nil {
		return Config{}, err
	}

	// Unmarshal onto the defaults so omitted sections keep their defaults
	// rather than zeroing out.
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
