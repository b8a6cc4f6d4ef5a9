package store

import (
	"context"
	"time"

	"github.com/hrygo/ragchat/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// CreateConversationIfNotExists creates the conversation record or
// returns the existing one with the same ID (first write wins).
func (s *Store) CreateConversationIfNotExists(ctx context.Context, id, sessionID, userID string) (*Conversation, error) {
	return s.driver.CreateConversationIfNotExists(ctx, &Conversation{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		StartTime: time.Now().Unix(),
	})
}

// ListConversations lists conversations matching the filter.
func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// SaveConversation persists conversation mutations (topic, end time).
func (s *Store) SaveConversation(ctx context.Context, conversation *Conversation) error {
	_, err := s.driver.UpdateConversation(ctx, &UpdateConversation{
		ID:      conversation.ID,
		Topic:   conversation.Topic,
		EndTime: conversation.EndTime,
	})
	return err
}

// LoadHistory returns the conversation's interactions in creation order.
func (s *Store) LoadHistory(ctx context.Context, conversationID string) ([]*Interaction, error) {
	return s.driver.ListInteractions(ctx, &FindInteraction{
		ConversationID: &conversationID,
	})
}

// AppendInteraction records one completed turn.
func (s *Store) AppendInteraction(ctx context.Context, conversationID, userID, userContent, botContent string) (*Interaction, error) {
	return s.driver.CreateInteraction(ctx, &Interaction{
		ConversationID: conversationID,
		UserID:         userID,
		UserContent:    userContent,
		BotContent:     botContent,
		CreatedTs:      time.Now().Unix(),
	})
}
