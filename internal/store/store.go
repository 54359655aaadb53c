// Package store provides the persistence layer: conversation records, chat
// log rows and the singleton flow document.
package store

import (
	"context"
	"time"
)

// Conversation is one conversation record, created per connection.
type Conversation struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatEntry is one logged classification decision.
type ChatEntry struct {
	ID             int64     `json:"id"`
	UserPrompt     string    `json:"userPrompt"`
	BotAnswer      string    `json:"botAnswer"`
	FlowStepTaken  string    `json:"flowStepTaken"`
	ConversationID int64     `json:"conversationId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store is the persistence interface consumed by the engine and the HTTP
// control surface. Exactly one flow document is current at any time; the
// replacement runs delete-then-insert inside a single transaction so readers
// never observe the gap.
type Store interface {
	CreateConversation(ctx context.Context) (int64, error)
	AppendChatLog(ctx context.Context, userPrompt, botAnswer, stepID string, conversationID int64) (int64, error)

	// GetFlowDocument returns the current raw flow document, found=false
	// when none has been uploaded.
	GetFlowDocument(ctx context.Context) (raw string, found bool, err error)
	ReplaceFlowDocument(ctx context.Context, jsonFlow string) (int64, error)

	ListConversations(ctx context.Context) ([]Conversation, error)
	ListChats(ctx context.Context) ([]ChatEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
