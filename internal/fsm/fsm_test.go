package fsm

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"msagent/internal/classifier"
)

func scores(pairs ...interface{}) []classifier.Score {
	out := make([]classifier.Score, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, classifier.Score{Scene: pairs[i].(string), Value: pairs[i+1].(float64)})
	}
	return out
}

func TestConfirmHysteresis(t *testing.T) {
	Convey("Given a fresh machine requiring 3 confirmations", t, func() {
		m := New(3)

		homeScores := scores("home", 0.9, "clear-ok", 0.5, "helper-select", 0.4)

		Convey("A single stable candidate observation does not yet transition", func() {
			state, changed := m.Update(homeScores)
			So(changed, ShouldBeFalse)
			So(state, ShouldEqual, Unknown)
		})

		Convey("Three consecutive stable observations confirm the transition", func() {
			m.Update(homeScores)
			m.Update(homeScores)
			state, changed := m.Update(homeScores)
			So(changed, ShouldBeTrue)
			So(state, ShouldEqual, Home)
		})

		Convey("An interrupted streak resets the pending counter", func() {
			m.Update(homeScores)
			m.Update(scores("unrelated", 0.9))
			_, _, hasPending := m.Pending()
			So(hasPending, ShouldBeFalse)

			m.Update(homeScores)
			m.Update(homeScores)
			state, changed := m.Update(homeScores)
			So(changed, ShouldBeTrue)
			So(state, ShouldEqual, Home)
		})
	})
}

func TestBlockedTransitionNeverConfirms(t *testing.T) {
	Convey("Given a machine in HOME", t, func() {
		m := New(1)
		m.Update(scores("home", 0.9, "clear-ok", 0.5, "helper-select", 0.4))

		Convey("A candidate not reachable from HOME is blocked outright", func() {
			state, changed := m.Update(scores("clear-ok", 0.9))
			So(changed, ShouldBeFalse)
			So(state, ShouldEqual, Home)
		})
	})
}

func TestQuestUijinOverride(t *testing.T) {
	Convey("Given a machine in QUEST", t, func() {
		m := New(1)
		m.state = Quest

		Convey("A candidate evaluation of NORMAL-QUEST-UIJIN is downgraded to NORMAL-QUEST", func() {
			uijinScores := scores(
				"normal-quest-uijin", 0.85,
				"normal-quest", 0.75,
				"deck-select", 0.55,
				"event", 0.5,
				"quest", 0.5,
			)
			state, changed := m.Update(uijinScores)
			So(changed, ShouldBeTrue)
			So(state, ShouldEqual, NormalQuest)
		})
	})
}

func TestInPlayPredicate(t *testing.T) {
	Convey("Given IN-PLAY scores where all but the top are near zero", t, func() {
		pairs := []interface{}{"normal-quest-uijin-in-play", 0.65}
		for i := 0; i < 9; i++ {
			pairs = append(pairs, "other-"+string(rune('a'+i)), 0.1)
		}
		m := New(1)
		m.state = DeckSelect

		Convey("The candidate resolves to IN-PLAY", func() {
			state, changed := m.Update(scores(pairs...))
			So(changed, ShouldBeTrue)
			So(state, ShouldEqual, InPlay)
		})
	})
}
