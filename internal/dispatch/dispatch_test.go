package dispatch

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"msagent/internal/actions"
	"msagent/internal/hid"
	"msagent/internal/scenecfg"
)

type nopDoer struct{}

func (nopDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
}

func TestDispatchRunsInFIFOOrder(t *testing.T) {
	Convey("Given a dispatcher with a recording action library", t, func() {
		transport := hid.New(nopDoer{}, "http://example.invalid", "dev1", scenecfg.DefaultTuning())

		var mu sync.Mutex
		var order []string
		lib := actions.Library{
			"a": func(*hid.Transport, actions.Args) { mu.Lock(); order = append(order, "a"); mu.Unlock() },
			"b": func(*hid.Transport, actions.Args) { mu.Lock(); order = append(order, "b"); mu.Unlock() },
			"c": func(*hid.Transport, actions.Args) { mu.Lock(); order = append(order, "c"); mu.Unlock() },
		}
		d := New(transport, lib, 8)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go d.Run(ctx)

		Convey("Actions dispatched in order a,b,c run in that order", func() {
			d.Dispatch("a", actions.Args{})
			d.Dispatch("b", actions.Args{})
			d.Dispatch("c", actions.Args{})

			So(waitForDepthZero(d, time.Second), ShouldBeTrue)
			mu.Lock()
			got := append([]string(nil), order...)
			mu.Unlock()
			So(got, ShouldResemble, []string{"a", "b", "c"})
		})
	})
}

func TestDispatchIfIdleSkipsWhenBusy(t *testing.T) {
	Convey("Given a dispatcher running a slow action", t, func() {
		transport := hid.New(nopDoer{}, "http://example.invalid", "dev1", scenecfg.DefaultTuning())

		started := make(chan struct{})
		release := make(chan struct{})
		var runs int
		var mu sync.Mutex
		lib := actions.Library{
			"slow": func(*hid.Transport, actions.Args) {
				close(started)
				<-release
				mu.Lock()
				runs++
				mu.Unlock()
			},
			"fast": func(*hid.Transport, actions.Args) {
				mu.Lock()
				runs++
				mu.Unlock()
			},
		}
		d := New(transport, lib, 8)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go d.Run(ctx)

		d.Dispatch("slow", actions.Args{})
		<-started

		Convey("A DispatchIfIdle call while busy is skipped", func() {
			d.DispatchIfIdle("fast", actions.Args{})
			close(release)
			So(waitForDepthZero(d, time.Second), ShouldBeTrue)
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			defer mu.Unlock()
			So(runs, ShouldEqual, 1)
		})
	})
}

func waitForDepthZero(d *Dispatcher, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.Idle() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}
