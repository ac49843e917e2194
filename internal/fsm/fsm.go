// Package fsm implements the Moore-style confirming state machine that
// turns a ranked list of classifier scores into a stable game state and the
// HID action that state calls for (spec.md §4.7).
package fsm

import (
	"log"

	"msagent/internal/classifier"
)

// State is one node of the closed game-flow state graph.
type State string

const (
	Unknown               State = "UNKNOWN"
	Home                  State = "HOME"
	Event                 State = "EVENT"
	Quest                 State = "QUEST"
	NormalQuest           State = "NORMAL-QUEST"
	NormalQuestUijin      State = "NORMAL-QUEST-UIJIN"
	NormalQuestUijinKaryu State = "NORMAL-QUEST-UIJIN-KARYU"
	HelperSelect          State = "HELPER-SELECT"
	DeckSelect            State = "DECK-SELECT"
	InPlay                State = "NORMAL-QUEST-UIJIN-IN-PLAY"
	ClearOK               State = "CLEAR-OK"
	SpecialReward         State = "SPECIAL-REWARD"
	RewardNext            State = "REWARD-NEXT"
)

// transitions enumerates, for each state, the states a candidate is allowed
// to confirm into. A candidate not listed here is blocked outright and
// resets the pending counter, no matter how persistently it's seen.
var transitions = map[State][]State{
	Unknown: {Home, Event, Quest, NormalQuest, NormalQuestUijin,
		NormalQuestUijinKaryu, HelperSelect, DeckSelect,
		InPlay, ClearOK, SpecialReward, RewardNext},
	Home:                  {Event, Quest, NormalQuestUijin},
	Event:                 {NormalQuestUijin, Home},
	Quest:                 {NormalQuest, Home},
	NormalQuest:           {NormalQuestUijin, Quest, Home},
	NormalQuestUijin:      {NormalQuestUijinKaryu, NormalQuest, Home},
	NormalQuestUijinKaryu: {HelperSelect, Home},
	HelperSelect:          {DeckSelect, Home},
	DeckSelect:            {InPlay, Home},
	InPlay:                {ClearOK},
	ClearOK:               {SpecialReward, RewardNext, Home},
	SpecialReward:         {RewardNext},
	RewardNext:            {Home},
}

// Actions maps each state to the action-library entry dispatched whenever
// the machine transitions into (or re-enters) it.
var Actions = map[State]string{
	Home:                  "quest_bt_click",
	Event:                 "normal_ikusei_bt_click",
	Quest:                 "normal_bt_click",
	NormalQuest:           "shojin_bt_click",
	NormalQuestUijin:      "karyu_bt_click",
	NormalQuestUijinKaryu: "solo_bt_click",
	HelperSelect:          "helper_select",
	DeckSelect:            "shutsugeki_bt_click",
	InPlay:                "play_turn",
	ClearOK:               "clear_ok",
	SpecialReward:         "special_reward",
	RewardNext:            "reward_next",
}

func scoreOf(scores []classifier.Score, name string) float64 {
	return classifier.ScoreOf(scores, name)
}

func allBelow(scores []classifier.Score, threshold float64, exclude ...string) bool {
	skip := map[string]bool{}
	for _, e := range exclude {
		skip[e] = true
	}
	for _, s := range scores {
		if skip[s.Scene] {
			continue
		}
		if s.Value > threshold {
			return false
		}
	}
	return true
}

func countBelow(scores []classifier.Score, threshold float64) int {
	n := 0
	for _, s := range scores {
		if s.Value <= threshold {
			n++
		}
	}
	return n
}

// evaluate determines which state the scores indicate on their own,
// ignoring the current state and the transition table entirely (spec.md
// §4.7 candidate evaluation predicates).
func evaluate(scores []classifier.Score) State {
	if len(scores) == 0 {
		return Unknown
	}

	top := scores[0]
	names := classifier.TopNames(scores, 3)

	switch {
	case top.Scene == "home" && top.Value >= 0.8 &&
		len(names) >= 3 && names[1] == "clear-ok" &&
		(names[2] == "helper-select" || names[2] == "deck-select"):
		return Home

	case top.Scene == "event" && top.Value >= 0.8 &&
		len(names) >= 2 && names[1] == "quest":
		return Event

	case top.Scene == "quest" && top.Value >= 0.8 &&
		len(names) >= 2 && names[1] == "event":
		return Quest

	case top.Scene == "normal-quest" && top.Value >= 0.8 &&
		scoreOf(scores, "normal-quest-uijin") >= 0.7 &&
		len(names) >= 2 && names[1] == "normal-quest-uijin":
		return NormalQuest

	case top.Scene == "normal-quest-uijin" && top.Value >= 0.8 &&
		scoreOf(scores, "normal-quest") >= 0.7 &&
		scoreOf(scores, "deck-select") >= 0.5 &&
		scoreOf(scores, "event") >= 0.45 &&
		scoreOf(scores, "quest") >= 0.45 &&
		len(names) >= 2 && names[1] == "normal-quest":
		return NormalQuestUijin

	case top.Scene == "normal-quest-uijin-karyu" && top.Value >= 0.7 &&
		(scoreOf(scores, "helper-select") >= 0.5 ||
			scoreOf(scores, "deck-select") >= 0.5 ||
			scoreOf(scores, "normal-quest") >= 0.6) &&
		len(names) >= 2 && (names[1] == "helper-select" || names[1] == "deck-select" || names[1] == "normal-quest"):
		return NormalQuestUijinKaryu

	case top.Scene == "helper-select" && top.Value >= 0.8 &&
		scoreOf(scores, "clear-ok") >= 0.6 &&
		scoreOf(scores, "deck-select") >= 0.6 &&
		len(names) >= 2 && (names[1] == "clear-ok" || names[1] == "deck-select"):
		return HelperSelect

	case top.Scene == "deck-select" && top.Value >= 0.8 &&
		(scoreOf(scores, "event") >= 0.6 || scoreOf(scores, "quest") >= 0.6) &&
		len(names) >= 2 && (names[1] == "event" || names[1] == "quest"):
		return DeckSelect

	case top.Scene == "normal-quest-uijin-in-play" && top.Value >= 0.6 &&
		countBelow(scores[1:], 0.2) >= 8:
		return InPlay

	case top.Scene == "clear-ok" && top.Value >= 0.8:
		return ClearOK

	case top.Scene == "special-reward" && top.Value >= 0.6 &&
		((scoreOf(scores, "reward-next") >= 0.3 && allBelow(scores, 0.2, "special-reward", "reward-next")) ||
			allBelow(scores, 0.2, "special-reward")):
		return SpecialReward

	case top.Scene == "reward-next" && top.Value >= 0.6 &&
		scoreOf(scores, "special-reward") < 0.6 &&
		allBelowStrict(scores, 0.3, "reward-next", "special-reward"):
		return RewardNext
	}

	return Unknown
}

func allBelowStrict(scores []classifier.Score, threshold float64, exclude ...string) bool {
	skip := map[string]bool{}
	for _, e := range exclude {
		skip[e] = true
	}
	for _, s := range scores {
		if skip[s.Scene] {
			continue
		}
		if s.Value >= threshold {
			return false
		}
	}
	return true
}

// Machine holds the current confirmed state and the in-flight candidate
// awaiting FSMConfirmCount consecutive confirmations (spec.md §4.7
// hysteresis). It is not safe for concurrent use; the control loop is its
// sole owner.
type Machine struct {
	state        State
	confirmCount int
	pending      State
	pendingCount int
	havePending  bool
}

// New returns a Machine starting in Unknown.
func New(confirmCount int) *Machine {
	return &Machine{state: Unknown, confirmCount: confirmCount}
}

// State returns the currently confirmed state.
func (m *Machine) State() State { return m.state }

// Pending returns the candidate awaiting confirmation (if any) and its
// current consecutive-hit count, for status reporting.
func (m *Machine) Pending() (candidate State, count int, ok bool) {
	return m.pending, m.pendingCount, m.havePending
}

// Update evaluates scores against the current state and advances the
// hysteresis counter. It returns the (possibly unchanged) state and whether
// a transition was just confirmed this call.
//
// A QUEST state paired with an UIJIN candidate is downgraded to
// NORMAL-QUEST: the quest-accept screen and the mid-quest UIJIN screen
// share enough visual structure that the raw classifier sometimes jumps
// straight there, but the actual game flow always passes through
// NORMAL-QUEST first.
func (m *Machine) Update(scores []classifier.Score) (State, bool) {
	candidate := evaluate(scores)
	if m.state == Quest && candidate == NormalQuestUijin {
		candidate = NormalQuest
	}

	if candidate == m.state {
		m.havePending = false
		m.pendingCount = 0
		return m.state, false
	}

	allowed := transitions[m.state]
	if !contains(allowed, candidate) {
		log.Printf("[fsm] blocked candidate=%s from state=%s", candidate, m.state)
		m.havePending = false
		m.pendingCount = 0
		return m.state, false
	}

	if m.havePending && m.pending == candidate {
		m.pendingCount++
	} else {
		m.pending = candidate
		m.pendingCount = 1
		m.havePending = true
	}
	log.Printf("[fsm] candidate=%s (%d/%d)", candidate, m.pendingCount, m.confirmCount)

	if m.pendingCount >= m.confirmCount {
		m.havePending = false
		m.pendingCount = 0
		m.state = candidate
		return m.state, true
	}
	return m.state, false
}

func contains(states []State, s State) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}
