// Package calibrate determines the active screen size in HID units, either
// from a caller-supplied size or by an auto-scan that steps the cursor
// from the origin until a hamburger-menu icon is detected (spec.md §4.4).
package calibrate

import (
	"context"
	"errors"
	"image"

	"msagent/internal/hid"
	"msagent/internal/scenecfg"
)

// ErrScanExhausted is returned when auto-scan runs MaxScanIterations
// without a match; the caller falls back to manual calibration.
var ErrScanExhausted = errors.New("calibrate: auto-scan exhausted without detecting menu")

// MenuDetector reports whether frame shows the hamburger-menu icon the
// auto-scan hunts for. The source stubs this predicate (spec.md §9 Open
// Questions); callers that don't have a real detector should pass
// NeverDetect, which forces exhaustion and manual fallback.
type MenuDetector func(frame image.Image) bool

// NeverDetect is a MenuDetector that never matches, used when no concrete
// vision predicate is wired up.
func NeverDetect(image.Image) bool { return false }

// FrameSource supplies the current camera/screen frame for the auto-scan
// to inspect after each scan step. Its shape matches frame.Source so a
// frame.Source can be passed directly without an adapter.
type FrameSource interface {
	Capture(ctx context.Context) (image.Image, error)
}

// Manual assigns screen size directly and performs a visual reset-to-origin,
// per spec.md §4.4's manual mode.
func Manual(t *hid.Transport, w, h int) {
	t.SetScreenSize(w, h)
	t.ResetOrigin()
}

// Auto performs the step-and-click scan from the origin, incrementing the
// cursor by tuning.ScanStep per report until detect matches the current
// frame, capped at tuning.MaxScanIterations (spec.md §4.4 auto mode).
// On success, screen_w = floor(cx/0.95), screen_h = floor(cy/0.97).
func Auto(ctx context.Context, t *hid.Transport, frames FrameSource, detect MenuDetector, tuning scenecfg.Tuning) error {
	t.ResetOrigin()

	for i := 0; i < tuning.MaxScanIterations; i++ {
		cx, cy := t.Position()
		t.Click(cx+tuning.ScanStep, cy+tuning.ScanStep, 1, 0)

		frame, err := frames.Capture(ctx)
		if err != nil {
			continue
		}
		if detect(frame) {
			x, y := t.Position()
			t.SetScreenSize(int(float64(x)/0.95), int(float64(y)/0.97))
			return nil
		}
	}
	return ErrScanExhausted
}
