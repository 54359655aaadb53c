package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Classifier is the external text classification service. Classify returns
// the raw model response; transport failures and timeouts come back as plain
// errors.
type Classifier interface {
	Classify(ctx context.Context, systemPrompt, utterance string) (string, error)
}

// ChatLogger records one classification decision per call.
type ChatLogger interface {
	AppendChatLog(ctx context.Context, userPrompt, botAnswer, stepID string, conversationID int64) (int64, error)
}

// DefaultIntentPreamble is the instruction prefix used when no prompt spec
// file is configured.
const DefaultIntentPreamble = "You are an intent recognition system. Your task is to identify the intent of the user's message, using the predetermined intents at the end of this message and send back just the matching intent. Please send back answers including JUST the intent from the list, which matches the message. If you cannot identify the intent, please send back 'unknown'. The intents are: "

// Resolver decides which branch of an intent step a user utterance takes.
// Literal phrase matching runs first; the classifier is consulted only when
// no phrase matches, and every classifier decision is written to the chat
// log.
type Resolver struct {
	classifier Classifier
	logs       ChatLogger
	preamble   string
}

func NewResolver(classifier Classifier, logs ChatLogger, preamble string) *Resolver {
	if preamble == "" {
		preamble = DefaultIntentPreamble
	}
	return &Resolver{classifier: classifier, logs: logs, preamble: preamble}
}

// Resolution is the outcome of resolving one intent step.
type Resolution struct {
	// NextStepID is empty when no rule matched and the step declares no
	// fallback; the traversal pass halts in that case.
	NextStepID string
	// Logged reports whether a chat log entry was written, i.e. whether the
	// decision involved the classifier.
	Logged bool
}

// Resolve applies the step's rules to the utterance. Rule order matters only
// for literal matching: the first rule with a phrase contained in the
// case-folded utterance wins without any classifier call. Otherwise the
// classifier is asked to name the matching rule, and its raw response is
// matched by case-folded substring against the rule names.
func (r *Resolver) Resolve(ctx context.Context, step *IntentStep, utterance string, conversationID int64) (Resolution, error) {
	if rule := matchLiteral(step.Rules, utterance); rule != nil {
		slog.Debug("intent matched literally", "step", step.ID, "rule", rule.Name)
		return Resolution{NextStepID: rule.Next}, nil
	}

	prompt := r.buildPrompt(step.Rules)
	answer, err := r.classifier.Classify(ctx, prompt, utterance)
	if err != nil {
		return Resolution{}, fmt.Errorf("classify intent at step %q: %w", step.ID, err)
	}

	if _, err := r.logs.AppendChatLog(ctx, utterance, answer, step.ID, conversationID); err != nil {
		// The decision is still usable; losing the log row is not worth
		// failing the traversal over.
		slog.Error("failed to record chat log entry", "step", step.ID, "conversation_id", conversationID, "error", err)
	}

	if rule := matchByName(step.Rules, answer); rule != nil {
		slog.Debug("intent matched via classifier", "step", step.ID, "rule", rule.Name)
		return Resolution{NextStepID: rule.Next, Logged: true}, nil
	}
	return Resolution{NextStepID: step.Fallback, Logged: true}, nil
}

func (r *Resolver) buildPrompt(rules []Rule) string {
	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		names = append(names, rule.Name)
	}
	return r.preamble + strings.Join(names, ", ")
}

// matchLiteral returns the first rule with a phrase contained in the
// utterance, comparing case-folded.
func matchLiteral(rules []Rule, utterance string) *Rule {
	folded := strings.ToLower(utterance)
	for i := range rules {
		for _, phrase := range rules[i].Phrases {
			if phrase == "" {
				continue
			}
			if strings.Contains(folded, strings.ToLower(phrase)) {
				return &rules[i]
			}
		}
	}
	return nil
}

// matchByName returns the first rule whose name appears anywhere in the
// classifier response. The response is not required to equal the name
// exactly; models tend to decorate their answers.
func matchByName(rules []Rule, response string) *Rule {
	folded := strings.ToLower(response)
	for i := range rules {
		if strings.Contains(folded, strings.ToLower(rules[i].Name)) {
			return &rules[i]
		}
	}
	return nil
}
