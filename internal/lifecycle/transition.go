// Package lifecycle moves expenses through pending, needs_review and their
// terminal states, committing categories and feeding the learning service.
package lifecycle

import (
	"fmt"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/model"
)

// Event is something that happens to an expense.
type Event string

// Lifecycle events.
const (
	EventAutoConfirm   Event = "auto_confirm"
	EventRequestReview Event = "request_review"
	EventConfirm       Event = "confirm"
	EventOverride      Event = "override"
	EventReject        Event = "reject"
)

// Effect is a side effect the caller must apply alongside a transition.
type Effect string

// Transition side effects.
const (
	EffectCommitSuggested Effect = "commit_suggested"
	EffectCommitChosen    Effect = "commit_chosen"
	EffectRecordRejection Effect = "record_rejection"
	EffectLearnConfirmed  Effect = "learn_confirmed"
	EffectLearnCorrected  Effect = "learn_corrected"
)

type edge struct {
	to      model.ExpenseStatus
	effects []Effect
}

var transitions = map[model.ExpenseStatus]map[Event]edge{
	model.StatusPending: {
		EventAutoConfirm:   {to: model.StatusAutoConfirmed, effects: []Effect{EffectCommitSuggested, EffectLearnConfirmed}},
		EventRequestReview: {to: model.StatusNeedsReview},
		EventConfirm:       {to: model.StatusConfirmed, effects: []Effect{EffectCommitSuggested, EffectLearnConfirmed}},
		EventOverride:      {to: model.StatusConfirmed, effects: []Effect{EffectCommitChosen, EffectLearnCorrected}},
		EventReject:        {to: model.StatusRejected, effects: []Effect{EffectRecordRejection}},
	},
	model.StatusNeedsReview: {
		EventConfirm:  {to: model.StatusConfirmed, effects: []Effect{EffectCommitSuggested, EffectLearnConfirmed}},
		EventOverride: {to: model.StatusConfirmed, effects: []Effect{EffectCommitChosen, EffectLearnCorrected}},
		EventReject:   {to: model.StatusRejected, effects: []Effect{EffectRecordRejection}},
	},
}

// Transition returns the next status and the effects for applying ev to an
// expense in status from. It has no side effects.
func Transition(from model.ExpenseStatus, ev Event) (model.ExpenseStatus, []Effect, error) {
	if from.IsTerminal() {
		return from, nil, fmt.Errorf("cannot %s: %w", ev, common.ErrDuplicateTransition)
	}
	e, ok := transitions[from][ev]
	if !ok {
		return from, nil, fmt.Errorf("cannot %s from %s: %w", ev, from, common.ErrInvalidTransition)
	}
	effects := make([]Effect, len(e.effects))
	copy(effects, e.effects)
	return e.to, effects, nil
}

func hasEffect(effects []Effect, want Effect) bool {
	for _, e := range effects {
		if e == want {
			return true
		}
	}
	return false
}
