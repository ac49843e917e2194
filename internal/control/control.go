// Package control wires the frame source, classifier, FSM, and dispatcher
// into the closed detect-act loop (spec.md §4.8): capture, crop/resize to
// the canonical frame, classify and step the FSM at ~1Hz, emit actions
// non-blockingly.
package control

import (
	"context"
	"image"
	"log"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"msagent/internal/actions"
	"msagent/internal/classifier"
	"msagent/internal/dispatch"
	"msagent/internal/frame"
	"msagent/internal/fsm"
	"msagent/internal/metrics"
)

// Observer receives a snapshot after every classify+FSM step, letting the
// status page publish without coupling the loop to a specific transport.
type Observer func(Snapshot)

// Snapshot is one control-loop tick's worth of state for display/telemetry.
type Snapshot struct {
	State         fsm.State
	Transitioned  bool
	PendingState  fsm.State
	PendingCount  int
	HasPending    bool
	Scores        []classifier.Score
	DispatchQueue int
	DispatchIdle  bool
}

// Loop drives frames through the pipeline at the given cadence.
type Loop struct {
	source        frame.Source
	classifier    *classifier.Classifier
	machine       *fsm.Machine
	dispatcher    *dispatch.Dispatcher
	gauges        *metrics.Gauges
	cadence       time.Duration
	playTurnEvery time.Duration
	observer      Observer
	onFrame       func(image.Image)
	actionArgs    actions.Args

	lastPlayTurn time.Time
}

// SetFrameObserver registers a callback invoked with the canonical
// (ROI-cropped, resized) frame on every tick, e.g. so a status page can
// serve a snapshot-save route against the most recently classified frame.
func (l *Loop) SetFrameObserver(fn func(image.Image)) {
	l.onFrame = fn
}

// New returns a control Loop. cadence is the minimum interval between
// classify+FSM steps (spec.md §4.8 "at most once per second" -> 1s
// default); playTurnEvery is the IN-PLAY self-repeat interval (spec.md
// §4.7 PLAY_TURN_INTERVAL). actionArgs is the calibration state passed to
// every dispatched action (spec.md §4.2), normally the screen size
// established by the launch sequence's calibration step.
func New(source frame.Source, c *classifier.Classifier, machine *fsm.Machine, dispatcher *dispatch.Dispatcher, gauges *metrics.Gauges, cadence, playTurnEvery time.Duration, observer Observer, actionArgs actions.Args) *Loop {
	return &Loop{
		source:        source,
		classifier:    c,
		machine:       machine,
		dispatcher:    dispatcher,
		gauges:        gauges,
		cadence:       cadence,
		playTurnEvery: playTurnEvery,
		observer:      observer,
		actionArgs:    actionArgs,
	}
}

// Run blocks, driving the loop on a channerics ticker until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	done := ctx.Done()
	for range channerics.NewTicker(done, l.cadence) {
		select {
		case <-done:
			return
		default:
		}
		l.tick(ctx)
	}
}

func (l *Loop) tick(ctx context.Context) {
	start := time.Now()

	raw, err := l.source.Capture(ctx)
	if err != nil {
		log.Printf("[control] capture error: %v", err)
		return
	}
	canonical := frame.Prepare(raw)
	if l.onFrame != nil {
		l.onFrame(canonical)
	}

	scores := l.classifier.Classify(canonical)
	newState, transitioned := l.machine.Update(scores)

	if transitioned {
		if action, ok := fsm.Actions[newState]; ok {
			l.dispatcher.Dispatch(action, l.actionArgs)
		}
	}

	if newState == fsm.InPlay {
		if time.Since(l.lastPlayTurn) >= l.playTurnEvery {
			l.dispatcher.DispatchIfIdle("play_turn", l.actionArgs)
			l.lastPlayTurn = time.Now()
		}
	}

	l.gauges.SetClassifyLatencyMS(float64(time.Since(start).Microseconds()) / 1000.0)
	l.gauges.SetFPS(1.0 / time.Since(start).Seconds())

	if l.observer != nil {
		pendingState, pendingCount, hasPending := l.machine.Pending()
		l.observer(Snapshot{
			State:         newState,
			Transitioned:  transitioned,
			PendingState:  pendingState,
			PendingCount:  pendingCount,
			HasPending:    hasPending,
			Scores:        scores,
			DispatchQueue: l.dispatcher.Depth(),
			DispatchIdle:  l.dispatcher.Idle(),
		})
	}
}
