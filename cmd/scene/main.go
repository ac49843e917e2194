// Command scene is the vision-driven automation agent: it loads scene
// templates, classifies frames from a frame source, drives the confirming
// state machine, dispatches HID actions, and serves a status page
// (spec.md §6 CLI surface, §4.8 Control Loop).
package main

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"msagent/internal/actions"
	"msagent/internal/calibrate"
	"msagent/internal/classifier"
	"msagent/internal/config"
	"msagent/internal/control"
	"msagent/internal/dispatch"
	"msagent/internal/frame"
	"msagent/internal/fsm"
	"msagent/internal/hid"
	"msagent/internal/launch"
	"msagent/internal/metrics"
	"msagent/internal/scenecfg"
	"msagent/internal/statuspage"
	"msagent/internal/templates"
)

// lastFrame lets the status page's /snapshot route read the most recently
// classified canonical frame without coupling it to the control loop.
type lastFrame struct {
	mu  sync.Mutex
	img image.Image
}

func (l *lastFrame) set(img image.Image) {
	l.mu.Lock()
	l.img = img
	l.mu.Unlock()
}

func (l *lastFrame) encoder() (func(*os.File) error, bool) {
	l.mu.Lock()
	img := l.img
	l.mu.Unlock()
	if img == nil {
		return nil, false
	}
	return func(f *os.File) error {
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	}, true
}

func main() {
	cfg := config.Parse()

	sceneCfg, err := scenecfg.Load(cfg.ConfigPath)
	if err != nil {
		log.Fatalf("scene config: %v", err)
	}

	store, err := templates.Load(cfg.TemplatesDir, sceneCfg.Regions)
	if err != nil && err != templates.ErrNoTemplates {
		log.Fatalf("templates: %v", err)
	}
	if len(store.Scenes()) == 0 {
		log.Printf("[scene] warning: no templates loaded from %s", cfg.TemplatesDir)
	}

	source, err := frame.NewDirSource(cfg.TemplatesDir)
	if err != nil {
		log.Fatalf("frame source: %v", err)
	}

	clsfr := classifier.New(store, sceneCfg.Rivals)

	hidEnabled := cfg.DeviceID != "" && cfg.HIDWidth > 0 && cfg.HIDHeight > 0
	if !hidEnabled {
		log.Printf("[scene] HID dispatch disabled (device-id/hid-w/hid-h not fully set); classification+FSM only")
	}

	transport := hid.New(http.DefaultClient, cfg.APIBase, cfg.DeviceID, sceneCfg.Tuning)
	manualW, manualH, manualOK := cfg.ManualSize()
	var manualSize *[2]int
	if manualOK {
		manualSize = &[2]int{manualW, manualH}
	}
	if manualOK && !hidEnabled {
		// No launch sequence will run to apply it (that only happens when HID
		// dispatch is enabled), so apply it directly here.
		calibrate.Manual(transport, manualW, manualH)
	}

	library := actions.New()
	dispatcher := dispatch.New(transport, library, 32)
	gauges := metrics.NewGauges()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("[scene] signal received, shutting down")
		cancel()
	}()

	if hidEnabled {
		ok, err := launch.Run(ctx, transport, source, clsfr, launch.Options{ManualSize: manualSize, Tuning: sceneCfg.Tuning})
		if err != nil {
			log.Printf("[scene] launch sequence error: %v", err)
		} else if !ok {
			log.Printf("[scene] launch sequence did not confirm home screen; continuing anyway")
		}
	}

	hidW, hidH := transport.ScreenSize()
	actionArgs := actions.Args{HIDW: hidW, HIDH: hidH}

	machine := fsm.New(sceneCfg.Tuning.FSMConfirmCount)

	lf := &lastFrame{}
	status := statuspage.New(cfg.StatusAddr, gauges, store, lf.encoder)

	observer := func(snap control.Snapshot) {
		status.Observer(snap)
	}

	loop := control.New(source, clsfr, machine, dispatcher,
		gauges, 1*time.Second, time.Duration(sceneCfg.Tuning.PlayTurnInterval*float64(time.Second)), observer, actionArgs)
	loop.SetFrameObserver(lf.set)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		dispatcher.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		loop.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		// Serve does not watch the context, so stop waiting on it once the
		// group is cancelled; the listener ends with the process.
		errc := make(chan error, 1)
		go func() { errc <- status.Serve() }()
		select {
		case err := <-errc:
			return err
		case <-groupCtx.Done():
			return nil
		}
	})

	if err := group.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "scene: %v\n", err)
		os.Exit(1)
	}
}
