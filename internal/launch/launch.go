// Package launch drives the scripted sequence that takes the agent from a
// cold game launch to a confirmed home screen: calibrate, dismiss the
// splash animation, then retry-tap common dialog-OK positions until the
// classifier confirms home (spec.md's supplemented launch-dismissal
// procedure, grounded in auto-test/initial.py's dismiss_splash/
// dismiss_dialogs).
package launch

import (
	"context"
	"log"
	"time"

	"msagent/internal/calibrate"
	"msagent/internal/classifier"
	"msagent/internal/frame"
	"msagent/internal/hid"
	"msagent/internal/scenecfg"
)

// splashTap is the screen-fraction position tapped to dismiss the initial
// animation.
var splashTap = [2]float64{0.50, 0.50}

// dialogOKPositions are common "OK"/confirm dialog button positions, tried
// in order on every retry attempt.
var dialogOKPositions = [][2]float64{
	{0.50, 0.65},
	{0.50, 0.70},
	{0.65, 0.65},
	{0.50, 0.80},
}

const maxDialogRetries = 10

// animationWait and dialogWait are vars rather than consts so tests can
// shrink them; production callers never change them.
var (
	animationWait = 5 * time.Second
	dialogWait    = 2 * time.Second
)

// Options configures one Run call.
type Options struct {
	// ManualSize, if non-nil, skips auto-scan calibration.
	ManualSize *[2]int
	Tuning     scenecfg.Tuning
}

// Run calibrates, dismisses the splash animation, then repeatedly taps
// dialog-OK positions until the classifier's top-ranked scene is "home" (or
// retries are exhausted). Returns whether home was confirmed.
func Run(ctx context.Context, t *hid.Transport, source frame.Source, c *classifier.Classifier, opts Options) (bool, error) {
	if opts.ManualSize != nil {
		calibrate.Manual(t, opts.ManualSize[0], opts.ManualSize[1])
	} else {
		if err := calibrate.Auto(ctx, t, source, calibrate.NeverDetect, opts.Tuning); err != nil {
			log.Printf("[launch] auto-calibration failed: %v; continuing in manual-only mode", err)
		}
	}

	log.Printf("[launch] waiting for splash animation")
	time.Sleep(animationWait)
	t.ClickPct(splashTap[0], splashTap[1], 1, 0)
	time.Sleep(2 * time.Second)

	return dismissDialogs(ctx, t, source, c)
}

func dismissDialogs(ctx context.Context, t *hid.Transport, source frame.Source, c *classifier.Classifier) (bool, error) {
	for attempt := 1; attempt <= maxDialogRetries; attempt++ {
		raw, err := source.Capture(ctx)
		if err == nil {
			scores := c.Classify(frame.Prepare(raw))
			if len(scores) > 0 && scores[0].Scene == "home" {
				log.Printf("[launch] home screen confirmed (attempt %d)", attempt)
				return true, nil
			}
		}

		for _, pos := range dialogOKPositions {
			t.ClickPct(pos[0], pos[1], 1, 0)
			time.Sleep(dialogWait)
		}
		log.Printf("[launch] dialog dismiss attempt %d/%d", attempt, maxDialogRetries)
	}

	log.Printf("[launch] max retries reached, home screen not confirmed")
	return false, nil
}
