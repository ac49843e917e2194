package calibrate

import (
	"context"
	"image"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"msagent/internal/hid"
	"msagent/internal/scenecfg"
)

type nopDoer struct{}

func (nopDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
}

type blankFrames struct{}

func (blankFrames) Capture(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 10, 10)), nil
}

func TestManualAssignsScreenSize(t *testing.T) {
	Convey("Given a transport", t, func() {
		tr := hid.New(nopDoer{}, "http://example.invalid", "dev1", scenecfg.DefaultTuning())

		Convey("Manual sets the exact requested screen size", func() {
			Manual(tr, 1170, 2532)
			w, h := tr.ScreenSize()
			So(w, ShouldEqual, 1170)
			So(h, ShouldEqual, 2532)
		})
	})
}

func TestAutoExhaustsWithoutDetection(t *testing.T) {
	Convey("Given a detector that never matches", t, func() {
		tr := hid.New(nopDoer{}, "http://example.invalid", "dev1", scenecfg.DefaultTuning())
		tu := scenecfg.DefaultTuning()
		tu.MaxScanIterations = 5

		Convey("Auto returns ErrScanExhausted after the iteration cap", func() {
			err := Auto(context.Background(), tr, blankFrames{}, NeverDetect, tu)
			So(err, ShouldEqual, ErrScanExhausted)
		})
	})
}

func TestAutoSucceedsOnDetection(t *testing.T) {
	Convey("Given a detector that matches immediately", t, func() {
		tr := hid.New(nopDoer{}, "http://example.invalid", "dev1", scenecfg.DefaultTuning())
		tu := scenecfg.DefaultTuning()
		tu.ScanStep = 10

		detect := func(image.Image) bool { return true }

		Convey("Auto computes screen size from the scaled cursor position", func() {
			err := Auto(context.Background(), tr, blankFrames{}, detect, tu)
			So(err, ShouldBeNil)
			w, h := tr.ScreenSize()
			So(w, ShouldEqual, int(10.0/0.95))
			So(h, ShouldEqual, int(10.0/0.97))
		})
	})
}
