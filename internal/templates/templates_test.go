package templates

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"msagent/internal/scenecfg"
)

func writeTestImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 10), uint8(y * 10), 100, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

func TestLoadGroupsByScene(t *testing.T) {
	Convey("Given a directory of scene template images", t, func() {
		dir := t.TempDir()
		writeTestImage(t, filepath.Join(dir, "home_0.jpg"))
		writeTestImage(t, filepath.Join(dir, "home_1.jpg"))
		writeTestImage(t, filepath.Join(dir, "quest_0.jpg"))
		writeTestImage(t, filepath.Join(dir, "not-a-template.jpg"))

		regions := map[string][]scenecfg.Region{
			"home": {{X: 0, Y: 0, W: 0.5, H: 0.5}},
		}

		store, err := Load(dir, regions)
		So(err, ShouldBeNil)

		Convey("Scenes are discovered and grouped by name", func() {
			So(store.Scenes(), ShouldResemble, []string{"home", "quest"})
			So(len(store.Full("home")), ShouldEqual, 2)
			So(len(store.Full("quest")), ShouldEqual, 1)
		})

		Convey("Region histograms are computed only for scenes with declared regions", func() {
			defs, hists := store.Regions("home")
			So(len(defs), ShouldEqual, 1)
			So(len(hists), ShouldEqual, 1)
			So(len(hists[0]), ShouldEqual, 2)

			noDefs, noHists := store.Regions("quest")
			So(noDefs, ShouldBeNil)
			So(noHists, ShouldBeNil)
		})
	})
}

func TestLoadEmptyDirReturnsErrNoTemplates(t *testing.T) {
	Convey("Given an empty directory", t, func() {
		dir := t.TempDir()
		store, err := Load(dir, nil)
		Convey("Load reports ErrNoTemplates but still returns a usable store", func() {
			So(err, ShouldEqual, ErrNoTemplates)
			So(store, ShouldNotBeNil)
			So(store.Scenes(), ShouldBeEmpty)
		})
	})
}

func TestSaveSnapshotAssignsNextIndex(t *testing.T) {
	Convey("Given a store with two existing home templates", t, func() {
		dir := t.TempDir()
		writeTestImage(t, filepath.Join(dir, "home_0.jpg"))
		writeTestImage(t, filepath.Join(dir, "home_1.jpg"))
		store, err := Load(dir, nil)
		So(err, ShouldBeNil)

		Convey("SaveSnapshot writes the next sequential index", func() {
			img := image.NewRGBA(image.Rect(0, 0, 4, 4))
			path, err := store.SaveSnapshot("home", func(f *os.File) error {
				return jpeg.Encode(f, img, nil)
			})
			So(err, ShouldBeNil)
			So(filepath.Base(path), ShouldEqual, "home_2.jpg")
			_, statErr := os.Stat(path)
			So(statErr, ShouldBeNil)
		})
	})
}
