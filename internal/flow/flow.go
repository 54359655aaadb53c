// Package flow implements the conversation flow engine: the step graph
// model, the intent resolver and the per-connection traversal logic.
package flow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Step kinds accepted in a flow document.
const (
	kindMessage = "message"
	kindWait    = "wait"
	kindIntent  = "intent"
)

var ErrInvalidFlow = errors.New("invalid flow document")

// Step is a node in the flow graph. The concrete kinds are MessageStep,
// WaitStep and IntentStep; the unexported method keeps the set closed so the
// traversal switch stays exhaustive.
type Step interface {
	StepID() string
	step()
}

// MessageStep emits its text unconditionally and advances to Next.
type MessageStep struct {
	ID   string
	Text string
	Next string
}

// WaitStep parks the session at Next and ends the traversal pass.
type WaitStep struct {
	ID   string
	Next string
}

// IntentStep branches on the user's utterance via its Rules.
type IntentStep struct {
	ID       string
	Rules    []Rule
	Fallback string
}

// Rule is a named branch of an intent step. Phrases trigger a literal match;
// Name is what the classifier is asked to pick from.
type Rule struct {
	Name    string
	Phrases []string
	Next    string
}

func (s *MessageStep) StepID() string { return s.ID }
func (s *WaitStep) StepID() string    { return s.ID }
func (s *IntentStep) StepID() string  { return s.ID }

func (*MessageStep) step() {}
func (*WaitStep) step()    {}
func (*IntentStep) step()  {}

// Flow is an immutable parsed flow document.
type Flow struct {
	StartStep string
	steps     map[string]Step
}

// Step looks a step up by id.
func (f *Flow) Step(id string) (Step, bool) {
	s, ok := f.steps[id]
	return s, ok
}

// Len reports the number of steps in the flow.
func (f *Flow) Len() int { return len(f.steps) }

// rawStep is the JSON shape of a step before it is narrowed to a kind.
type rawStep struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Text     string    `json:"text"`
	Next     string    `json:"next"`
	Rules    []rawRule `json:"rules"`
	Fallback string    `json:"fallback"`
}

type rawRule struct {
	Name    string   `json:"name"`
	Phrases []string `json:"phrases"`
	Next    string   `json:"next"`
}

type rawFlow struct {
	StartStep string    `json:"startStep"`
	Steps     []rawStep `json:"steps"`
}

// Load parses and validates a raw flow document. Validation is structural
// only: the start step must exist and be a message step, every step must have
// a recognized kind and a non-empty id, and every rule must carry a name and
// a target. Whether next/fallback targets actually exist is deliberately not
// checked here; dangling references surface as traversal errors.
func Load(raw []byte) (*Flow, error) {
	var doc rawFlow
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFlow, err)
	}
	if doc.StartStep == "" {
		return nil, fmt.Errorf("%w: missing startStep", ErrInvalidFlow)
	}
	if len(doc.Steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidFlow)
	}

	steps := make(map[string]Step, len(doc.Steps))
	for _, rs := range doc.Steps {
		if rs.ID == "" {
			return nil, fmt.Errorf("%w: step with empty id", ErrInvalidFlow)
		}
		if _, dup := steps[rs.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate step id %q", ErrInvalidFlow, rs.ID)
		}
		step, err := narrowStep(rs)
		if err != nil {
			return nil, err
		}
		steps[rs.ID] = step
	}

	start, ok := steps[doc.StartStep]
	if !ok {
		return nil, fmt.Errorf("%w: startStep %q not found", ErrInvalidFlow, doc.StartStep)
	}
	if _, ok := start.(*MessageStep); !ok {
		return nil, fmt.Errorf("%w: startStep %q is not a message step", ErrInvalidFlow, doc.StartStep)
	}

	return &Flow{StartStep: doc.StartStep, steps: steps}, nil
}

func narrowStep(rs rawStep) (Step, error) {
	switch rs.Type {
	case kindMessage:
		if rs.Text == "" {
			return nil, fmt.Errorf("%w: message step %q has no text", ErrInvalidFlow, rs.ID)
		}
		return &MessageStep{ID: rs.ID, Text: rs.Text, Next: rs.Next}, nil
	case kindWait:
		return &WaitStep{ID: rs.ID, Next: rs.Next}, nil
	case kindIntent:
		if len(rs.Rules) == 0 {
			return nil, fmt.Errorf("%w: intent step %q has no rules", ErrInvalidFlow, rs.ID)
		}
		rules := make([]Rule, 0, len(rs.Rules))
		for _, rr := range rs.Rules {
			if rr.Name == "" {
				return nil, fmt.Errorf("%w: intent step %q has a rule with no name", ErrInvalidFlow, rs.ID)
			}
			if rr.Next == "" {
				return nil, fmt.Errorf("%w: rule %q in step %q has no target", ErrInvalidFlow, rr.Name, rs.ID)
			}
			rules = append(rules, Rule{Name: rr.Name, Phrases: rr.Phrases, Next: rr.Next})
		}
		return &IntentStep{ID: rs.ID, Rules: rules, Fallback: rs.Fallback}, nil
	default:
		return nil, fmt.Errorf("%w: step %q has unknown type %q", ErrInvalidFlow, rs.ID, rs.Type)
	}
}
