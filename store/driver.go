package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate brings the schema up to date.
	Migrate(ctx context.Context) error

	// Conversation model related methods.
	//
	// CreateConversationIfNotExists has get-or-create semantics keyed by
	// the conversation ID: if a row with the same ID already exists it is
	// returned unchanged (first write wins).
	CreateConversationIfNotExists(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)

	// Interaction model related methods.
	CreateInteraction(ctx context.Context, create *Interaction) (*Interaction, error)
	ListInteractions(ctx context.Context, find *FindInteraction) ([]*Interaction, error)
}
