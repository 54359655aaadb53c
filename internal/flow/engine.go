package flow

import (
	"context"
	"log/slog"

	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/session"
)

// EngineStore is the slice of the persistence layer the engine needs.
type EngineStore interface {
	CreateConversation(ctx context.Context) (int64, error)
	// GetFlowDocument returns the current raw flow document, or found=false
	// when none has been uploaded yet.
	GetFlowDocument(ctx context.Context) (raw string, found bool, err error)
}

// Emitter delivers outbound events for one connection. Implemented by the
// websocket transport; tests substitute a recorder.
type Emitter interface {
	SendResponse(ctx context.Context, text string) error
	SendError(ctx context.Context, message string) error
}

// Engine walks the flow graph for each connection. Errors never escape its
// entry points; they are converted to error events on the connection and the
// session is left at its last valid position.
type Engine struct {
	store    EngineStore
	sessions *session.Store
	resolver *Resolver
	maxSteps int
}

func NewEngine(store EngineStore, sessions *session.Store, resolver *Resolver, maxSteps int) *Engine {
	if maxSteps <= 0 {
		maxSteps = 100
	}
	return &Engine{store: store, sessions: sessions, resolver: resolver, maxSteps: maxSteps}
}

// Connect runs the start sequence for a new connection: create a conversation
// record, emit the start step's message and park the session after the wait
// step that follows it. No session is registered unless the flow yields a
// valid resting position.
func (e *Engine) Connect(ctx context.Context, connectionID string, em Emitter) {
	conversationID, err := e.store.CreateConversation(ctx)
	if err != nil {
		slog.Error("failed to create conversation record", "connection_id", connectionID, "error", err)
		e.sendError(ctx, em, "failed to start conversation")
		return
	}

	fl, ok := e.loadFlow(ctx, connectionID, em)
	if !ok {
		return
	}

	start, found := fl.Step(fl.StartStep)
	msg, isMessage := start.(*MessageStep)
	if !found || !isMessage {
		e.sendError(ctx, em, "invalid start step structure")
		return
	}
	e.send(ctx, em, msg.Text)

	// The start step's successor is expected to be a wait step; the session
	// comes to rest at whatever that step points to.
	if msg.Next == "" {
		e.sendError(ctx, em, "invalid flow structure after start step")
		return
	}
	successor, found := fl.Step(msg.Next)
	if !found {
		e.sendError(ctx, em, "invalid flow structure after start step")
		return
	}
	resting := successorOf(successor)
	if resting == "" {
		e.sendError(ctx, em, "invalid flow structure after start step")
		return
	}

	e.sessions.Create(connectionID, conversationID, resting)
	slog.Info("session initialized", "connection_id", connectionID, "conversation_id", conversationID, "resting_step", resting)
}

// Message runs one traversal pass for an incoming utterance. Passes for the
// same connection are serialized on the session's pass lock; a second
// utterance waits for the first pass to finish.
func (e *Engine) Message(ctx context.Context, connectionID, utterance string, em Emitter) {
	sess, ok := e.sessions.Get(connectionID)
	if !ok {
		e.sendError(ctx, em, "session not initialized")
		return
	}

	sess.BeginPass()
	defer sess.EndPass()

	current, _ := e.sessions.CurrentStep(connectionID)
	if current == "" {
		e.sendError(ctx, em, "session not initialized")
		return
	}

	fl, ok := e.loadFlow(ctx, connectionID, em)
	if !ok {
		return
	}

	for steps := 0; current != ""; steps++ {
		if steps >= e.maxSteps {
			slog.Error("traversal pass exceeded step limit", "connection_id", connectionID, "step", current, "limit", e.maxSteps)
			e.sendError(ctx, em, "flow aborted: too many steps without waiting for input")
			return
		}

		step, found := fl.Step(current)
		if !found {
			e.sendError(ctx, em, "step not found: "+current)
			return
		}

		switch s := step.(type) {
		case *MessageStep:
			e.send(ctx, em, s.Text)
			current = s.Next
			e.sessions.SetCurrentStep(connectionID, current)

		case *WaitStep:
			// The only step kind that suspends a pass.
			e.sessions.SetCurrentStep(connectionID, s.Next)
			return

		case *IntentStep:
			res, err := e.resolver.Resolve(ctx, s, utterance, sess.ConversationID)
			if err != nil {
				slog.Error("intent resolution failed", "connection_id", connectionID, "step", s.ID, "error", err)
				e.sendError(ctx, em, "intent recognition failed")
				if s.Fallback != "" {
					e.sessions.SetCurrentStep(connectionID, s.Fallback)
				} else {
					// No fallback: stay on the intent step so the user can
					// retry with the next utterance.
					e.sessions.SetCurrentStep(connectionID, s.ID)
				}
				return
			}
			current = res.NextStepID
			e.sessions.SetCurrentStep(connectionID, current)

		default:
			e.sendError(ctx, em, "unknown step type")
			return
		}
	}
}

// Disconnect drops the session for a closed connection.
func (e *Engine) Disconnect(connectionID string) {
	e.sessions.Remove(connectionID)
	slog.Info("session removed", "connection_id", connectionID)
}

func (e *Engine) loadFlow(ctx context.Context, connectionID string, em Emitter) (*Flow, bool) {
	raw, found, err := e.store.GetFlowDocument(ctx)
	if err != nil {
		slog.Error("failed to load flow document", "connection_id", connectionID, "error", err)
		e.sendError(ctx, em, "no valid flow found in the database")
		return nil, false
	}
	if !found {
		e.sendError(ctx, em, "no valid flow found in the database")
		return nil, false
	}
	fl, err := Load([]byte(raw))
	if err != nil {
		slog.Error("stored flow document is invalid", "connection_id", connectionID, "error", err)
		e.sendError(ctx, em, "no valid flow found in the database")
		return nil, false
	}
	return fl, true
}

// successorOf reads a step's unconditional successor. Intent steps have no
// single successor and return empty.
func successorOf(step Step) string {
	switch s := step.(type) {
	case *MessageStep:
		return s.Next
	case *WaitStep:
		return s.Next
	default:
		return ""
	}
}

func (e *Engine) send(ctx context.Context, em Emitter, text string) {
	if err := em.SendResponse(ctx, text); err != nil {
		slog.Debug("failed to send chat response", "error", err)
	}
}

func (e *Engine) sendError(ctx context.Context, em Emitter, message string) {
	if err := em.SendError(ctx, message); err != nil {
		slog.Debug("failed to send error event", "error", err)
	}
}
