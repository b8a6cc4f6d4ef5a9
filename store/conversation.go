package store

// Conversation is one multi-turn chat session. Created once per ID via
// create-or-resume; the topic is set on the turn flagged as starting a
// new conversation and the end time is updated every turn. Never deleted.
type Conversation struct {
	ID        string
	SessionID string
	UserID    string
	Topic     *string
	StartTime int64
	EndTime   *int64
}

// FindConversation filters conversation lookups.
type FindConversation struct {
	ID     *string
	UserID *string
}

// UpdateConversation carries conversation mutations.
type UpdateConversation struct {
	ID      string
	Topic   *string
	EndTime *int64
}

// Interaction is one completed turn: the raw user question and the
// synthesized answer. Append-only; creation order is the history order.
type Interaction struct {
	ID             int64
	ConversationID string
	UserID         string
	UserContent    string
	BotContent     string
	CreatedTs      int64
}

// FindInteraction filters interaction lookups.
type FindInteraction struct {
	ConversationID *string
}
