package classifier

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"msagent/internal/scenecfg"
	"msagent/internal/templates"
)

func writeSolid(t *testing.T, dir, name string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyRanksClosestTemplateFirst(t *testing.T) {
	Convey("Given a template store with two visually distinct scenes", t, func() {
		dir := t.TempDir()
		writeSolid(t, dir, "home_0.jpg", color.RGBA{220, 30, 30, 255})
		writeSolid(t, dir, "quest_0.jpg", color.RGBA{30, 30, 220, 255})

		store, err := templates.Load(dir, map[string][]scenecfg.Region{})
		So(err, ShouldBeNil)

		c := New(store, nil)

		Convey("A frame matching home's color ranks home first", func() {
			frame := image.NewRGBA(image.Rect(0, 0, 40, 40))
			for y := 0; y < 40; y++ {
				for x := 0; x < 40; x++ {
					frame.Set(x, y, color.RGBA{218, 28, 28, 255})
				}
			}
			result := c.Classify(frame)
			So(len(result), ShouldEqual, 2)
			So(result[0].Scene, ShouldEqual, "home")
			So(result[0].Value, ShouldBeGreaterThan, result[1].Value)
		})
	})
}

func TestRivalSymmetry(t *testing.T) {
	Convey("Given quest and event rival configs matching spec defaults", t, func() {
		rivals := []scenecfg.Rival{
			{Scene: "quest", RivalScene: "event", KeyRegionIndex: 0, OtherRegionIdxs: []int{1, 2}, Weight: 0.5},
			{Scene: "event", RivalScene: "quest", KeyRegionIndex: 1, OtherRegionIdxs: []int{0, 2}, Weight: 0.5},
		}

		Convey("score(quest)-score(event) is monotonic non-decreasing in the combined region-score difference", func() {
			// Each sample varies questRegion0 and eventRegion1 together so the
			// combined difference (questDelta - eventDelta) strictly increases
			// sample-to-sample; region 2 stays fixed for both scenes.
			samples := []struct {
				questRegion0, eventRegion1, shared float64
			}{
				{0.1, 0.9, 0.5},
				{0.3, 0.7, 0.5},
				{0.5, 0.5, 0.5},
				{0.7, 0.3, 0.5},
				{0.9, 0.1, 0.5},
			}

			var prevDiff float64
			var prevCombined float64
			for i, s := range samples {
				scores := map[string]float64{"quest": 0.4, "event": 0.4}
				regionScores := map[string][]float64{
					"quest": {s.questRegion0, s.shared, s.shared},
					"event": {s.shared, s.eventRegion1, s.shared},
				}
				applyRivals(scores, regionScores, rivals)
				diff := scores["quest"] - scores["event"]

				questDelta := 0.5 * (s.questRegion0 - mean([]float64{s.shared, s.shared}))
				eventDelta := 0.5 * (s.eventRegion1 - mean([]float64{s.shared, s.shared}))
				combined := questDelta - eventDelta

				if i > 0 {
					So(combined, ShouldBeGreaterThan, prevCombined)
					So(diff, ShouldBeGreaterThan, prevDiff)
				}
				prevDiff = diff
				prevCombined = combined
			}
		})

		Convey("a rival delta never leaks onto the rival scene's own score", func() {
			scores := map[string]float64{"quest": 0.4, "event": 0.4}
			regionScores := map[string][]float64{
				"quest": {0.9, 0.1, 0.1},
				"event": {0.1, 0.9, 0.1},
			}
			applyRivals(scores, regionScores, rivals)
			So(scores["quest"], ShouldEqual, 0.4+0.5*(0.9-0.1))
			So(scores["event"], ShouldEqual, 0.4+0.5*(0.9-0.1))
		})
	})
}

func TestScoreOfAndTopNames(t *testing.T) {
	Convey("Given a ranked score list", t, func() {
		s := []Score{{Scene: "a", Value: 0.9}, {Scene: "b", Value: 0.5}}

		Convey("ScoreOf finds an existing scene and reports -1 for an unknown one", func() {
			So(ScoreOf(s, "a"), ShouldEqual, 0.9)
			So(ScoreOf(s, "missing"), ShouldEqual, -1)
		})

		Convey("TopNames returns names in rank order, capped at the list length", func() {
			So(TopNames(s, 5), ShouldResemble, []string{"a", "b"})
			So(TopNames(s, 1), ShouldResemble, []string{"a"})
		})
	})
}
