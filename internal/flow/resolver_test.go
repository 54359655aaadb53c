package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type stubClassifier struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompts  []string
}

func (c *stubClassifier) Classify(ctx context.Context, systemPrompt, utterance string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.prompts = append(c.prompts, systemPrompt)
	return c.response, c.err
}

func (c *stubClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type chatRow struct {
	userPrompt     string
	botAnswer      string
	stepID         string
	conversationID int64
}

type recordingLogger struct {
	mu   sync.Mutex
	rows []chatRow
	err  error
}

func (l *recordingLogger) AppendChatLog(ctx context.Context, userPrompt, botAnswer, stepID string, conversationID int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	l.rows = append(l.rows, chatRow{userPrompt, botAnswer, stepID, conversationID})
	return int64(len(l.rows)), nil
}

func (l *recordingLogger) all() []chatRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]chatRow(nil), l.rows...)
}

func greetStep() *IntentStep {
	return &IntentStep{
		ID: "i1",
		Rules: []Rule{
			{Name: "greet", Phrases: []string{"hello", "hi"}, Next: "m2"},
			{Name: "bye", Phrases: []string{"goodbye"}, Next: "m3"},
		},
		Fallback: "m9",
	}
}

func TestResolveLiteralMatchSkipsClassifier(t *testing.T) {
	classifier := &stubClassifier{}
	logs := &recordingLogger{}
	r := NewResolver(classifier, logs, "")

	res, err := r.Resolve(context.Background(), greetStep(), "well HELLO there", 1)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.NextStepID != "m2" {
		t.Errorf("expected m2, got %q", res.NextStepID)
	}
	if res.Logged {
		t.Error("literal match must not be logged")
	}
	if classifier.callCount() != 0 {
		t.Errorf("classifier must not be invoked on a literal match, got %d calls", classifier.callCount())
	}
	if len(logs.all()) != 0 {
		t.Error("no chat log entry expected for a literal match")
	}
}

func TestResolveLiteralFirstRuleWins(t *testing.T) {
	step := &IntentStep{
		ID: "i1",
		Rules: []Rule{
			{Name: "a", Phrases: []string{"ok"}, Next: "na"},
			{Name: "b", Phrases: []string{"ok"}, Next: "nb"},
		},
	}
	r := NewResolver(&stubClassifier{}, &recordingLogger{}, "")
	res, err := r.Resolve(context.Background(), step, "ok then", 1)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.NextStepID != "na" {
		t.Errorf("first matching rule should win, got %q", res.NextStepID)
	}
}

func TestResolveClassifierMatchBySubstring(t *testing.T) {
	classifier := &stubClassifier{response: "The matching intent is: GREET."}
	logs := &recordingLogger{}
	r := NewResolver(classifier, logs, "")

	res, err := r.Resolve(context.Background(), greetStep(), "good evening", 7)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.NextStepID != "m2" {
		t.Errorf("expected m2 via classifier, got %q", res.NextStepID)
	}
	if !res.Logged {
		t.Error("classifier decision must be logged")
	}
}

func TestResolveClassifierPromptEnumeratesRules(t *testing.T) {
	classifier := &stubClassifier{response: "unknown"}
	r := NewResolver(classifier, &recordingLogger{}, "Pick one of: ")

	if _, err := r.Resolve(context.Background(), greetStep(), "good evening", 1); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(classifier.prompts) != 1 {
		t.Fatalf("expected one classification call, got %d", len(classifier.prompts))
	}
	if got, want := classifier.prompts[0], "Pick one of: greet, bye"; got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}
}

func TestResolveDefaultPreamble(t *testing.T) {
	classifier := &stubClassifier{response: "unknown"}
	r := NewResolver(classifier, &recordingLogger{}, "")

	if _, err := r.Resolve(context.Background(), greetStep(), "good evening", 1); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !strings.HasPrefix(classifier.prompts[0], "You are an intent recognition system.") {
		t.Errorf("expected default preamble, got %q", classifier.prompts[0])
	}
	if !strings.HasSuffix(classifier.prompts[0], "greet, bye") {
		t.Errorf("prompt should end with the rule names, got %q", classifier.prompts[0])
	}
}

func TestResolveFallbackOnUnknown(t *testing.T) {
	classifier := &stubClassifier{response: "unknown"}
	logs := &recordingLogger{}
	r := NewResolver(classifier, logs, "")

	res, err := r.Resolve(context.Background(), greetStep(), "good evening", 3)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.NextStepID != "m9" {
		t.Errorf("expected fallback m9, got %q", res.NextStepID)
	}
	if !res.Logged {
		t.Error("unmatched classification must still be logged")
	}

	rows := logs.all()
	if len(rows) != 1 {
		t.Fatalf("expected exactly one chat log entry, got %d", len(rows))
	}
	row := rows[0]
	if row.userPrompt != "good evening" || row.botAnswer != "unknown" || row.stepID != "i1" || row.conversationID != 3 {
		t.Errorf("chat log entry mismatch: %+v", row)
	}
}

func TestResolveHaltsWithoutFallback(t *testing.T) {
	step := greetStep()
	step.Fallback = ""
	classifier := &stubClassifier{response: "unknown"}
	r := NewResolver(classifier, &recordingLogger{}, "")

	res, err := r.Resolve(context.Background(), step, "good evening", 1)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.NextStepID != "" {
		t.Errorf("expected empty next step, got %q", res.NextStepID)
	}
}

func TestResolveClassifierErrorSurfaces(t *testing.T) {
	classifier := &stubClassifier{err: errors.New("service unavailable")}
	logs := &recordingLogger{}
	r := NewResolver(classifier, logs, "")

	_, err := r.Resolve(context.Background(), greetStep(), "good evening", 1)
	if err == nil {
		t.Fatal("expected error from classifier failure")
	}
	if len(logs.all()) != 0 {
		t.Error("no chat log entry expected when classification fails")
	}
}

func TestResolveSurvivesLogFailure(t *testing.T) {
	classifier := &stubClassifier{response: "greet"}
	logs := &recordingLogger{err: errors.New("disk full")}
	r := NewResolver(classifier, logs, "")

	res, err := r.Resolve(context.Background(), greetStep(), "good evening", 1)
	if err != nil {
		t.Fatalf("a failed log write must not fail resolution: %v", err)
	}
	if res.NextStepID != "m2" {
		t.Errorf("expected m2, got %q", res.NextStepID)
	}
}
