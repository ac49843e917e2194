package actions

import (
	"math"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"msagent/internal/hid"
	"msagent/internal/scenecfg"
)

type nopDoer struct{ calls int }

func (d *nopDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls++
	return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
}

func fastTuning() scenecfg.Tuning {
	tu := scenecfg.DefaultTuning()
	tu.MoveDelay = 0
	tu.ClickHold = 0
	return tu
}

func TestLibraryRegistersEveryNamedAction(t *testing.T) {
	Convey("Given the full action library", t, func() {
		lib := New()

		Convey("every spec.md §4.2 action name resolves to a Func", func() {
			names := []string{
				"calibrate", "quest_bt_click", "normal_bt_click",
				"normal_ikusei_bt_click", "shojin_bt_click", "karyu_bt_click",
				"solo_bt_click", "helper_select", "shutsugeki_bt_click",
				"play_turn", "clear_ok", "special_reward", "reward_next",
			}
			for _, name := range names {
				fn, ok := lib[name]
				So(ok, ShouldBeTrue)
				So(fn, ShouldNotBeNil)
			}
			So(len(lib), ShouldEqual, len(names))
		})
	})
}

func TestTapActionsReapplyCalibrationFromArgs(t *testing.T) {
	Convey("Given a transport calibrated to a stale screen size", t, func() {
		doer := &nopDoer{}
		tr := hid.New(doer, "http://example.invalid/api", "dev1", fastTuning())
		tr.SetScreenSize(100, 100)

		Convey("a tap action reapplies the screen size carried in args before clicking", func() {
			lib := New()
			lib["quest_bt_click"](tr, Args{HIDW: 1000, HIDH: 2000})

			w, h := tr.ScreenSize()
			So(w, ShouldEqual, 1000)
			So(h, ShouldEqual, 2000)
			So(doer.calls, ShouldBeGreaterThan, 0)
		})

		Convey("an action invoked with no calibration args leaves screen size untouched but still resets origin", func() {
			tr.MoveTo(50, 50)
			lib := New()
			lib["normal_bt_click"](tr, Args{})

			w, h := tr.ScreenSize()
			So(w, ShouldEqual, 100)
			So(h, ShouldEqual, 100)
		})
	})
}

func TestShojinBtClickScrollsThenClicks(t *testing.T) {
	Convey("Given a calibrated transport", t, func() {
		doer := &nopDoer{}
		tr := hid.New(doer, "http://example.invalid/api", "dev1", fastTuning())

		Convey("shojin_bt_click reapplies calibration and completes without panicking", func() {
			So(func() { New()["shojin_bt_click"](tr, Args{HIDW: 800, HIDH: 1600}) }, ShouldNotPanic)
			w, h := tr.ScreenSize()
			So(w, ShouldEqual, 800)
			So(h, ShouldEqual, 1600)
		})
	})
}

func TestHelperSelectCompletesWithoutPanicking(t *testing.T) {
	Convey("Given a calibrated transport", t, func() {
		doer := &nopDoer{}
		tr := hid.New(doer, "http://example.invalid/api", "dev1", fastTuning())

		Convey("helper_select scrolls up then down then selects, without panicking", func() {
			So(func() { New()["helper_select"](tr, Args{HIDW: 800, HIDH: 1600}) }, ShouldNotPanic)
		})
	})
}

func TestClearOKResetsOriginBetweenTaps(t *testing.T) {
	Convey("Given a transport that has drifted from the origin", t, func() {
		doer := &nopDoer{}
		tr := hid.New(doer, "http://example.invalid/api", "dev1", fastTuning())
		tr.SetScreenSize(1000, 2000)
		tr.MoveTo(900, 900)

		Convey("clear_ok ends with the cursor tracked relative to the reset origin", func() {
			New()["clear_ok"](tr, Args{HIDW: 1000, HIDH: 2000})
			x, y := tr.Position()
			// The final tap lands at (0.50, 0.78) of the screen, measured from
			// the origin reset mid-action, not from the pre-action position.
			So(x, ShouldEqual, int(0.50*1000))
			So(y, ShouldEqual, int(0.78*2000))
		})
	})
}

func TestPlayTurnFlicksFromScreenCenterWithinBounds(t *testing.T) {
	Convey("Given a calibrated transport", t, func() {
		doer := &nopDoer{}
		tr := hid.New(doer, "http://example.invalid/api", "dev1", fastTuning())

		Convey("play_turn ends within strength radius of screen center", func() {
			New()["play_turn"](tr, Args{HIDW: 1000, HIDH: 2000})
			x, y := tr.Position()
			cx, cy := 500, 1000
			dist := math.Hypot(float64(x-cx), float64(y-cy))
			// Flooring each axis can add just under 1 per axis to the radius.
			So(dist, ShouldBeLessThanOrEqualTo, 200.0+math.Sqrt2)
		})
	})
}

func TestActionCalibrateOnlyReapplies(t *testing.T) {
	Convey("Given a transport", t, func() {
		doer := &nopDoer{}
		tr := hid.New(doer, "http://example.invalid/api", "dev1", fastTuning())

		Convey("the calibrate action assigns screen size and resets origin, nothing else", func() {
			calls := doer.calls
			New()["calibrate"](tr, Args{HIDW: 640, HIDH: 1280})
			w, h := tr.ScreenSize()
			So(w, ShouldEqual, 640)
			So(h, ShouldEqual, 1280)
			x, y := tr.Position()
			So(x, ShouldEqual, 0)
			So(y, ShouldEqual, 0)
			So(doer.calls, ShouldBeGreaterThan, calls)
		})
	})
}
