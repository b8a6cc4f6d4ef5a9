// Package window assembles the ordered, token-budgeted message sequence
// sent to a single completion call.
package window

import (
	"github.com/hrygo/ragchat/plugin/ai"
)

// Turn is one user/bot exchange from the conversation history.
// Either side may be empty.
type Turn struct {
	User string
	Bot  string
}

// Builder accumulates messages for one completion call. An instance is
// scoped to exactly one call; once the token budget is exceeded the
// window stops growing but is never truncated mid-message.
type Builder struct {
	messages []ai.Message
	counter  ai.TokenCounter
	tokens   int
}

// NewBuilder creates a builder seeded with the system message at index 0.
func NewBuilder(systemPrompt string, counter ai.TokenCounter) *Builder {
	b := &Builder{counter: counter}
	b.Append(ai.RoleSystem, systemPrompt)
	return b
}

// Append adds a message at the end of the window.
func (b *Builder) Append(role, content string) {
	b.messages = append(b.messages, ai.Message{Role: role, Content: content})
	b.tokens += b.counter.CountTokens(content)
}

// Insert adds a message at the given index, pushing existing messages at
// and after that index outward.
func (b *Builder) Insert(index int, role, content string) {
	if index < 0 {
		index = 0
	}
	if index > len(b.messages) {
		index = len(b.messages)
	}
	b.messages = append(b.messages, ai.Message{})
	copy(b.messages[index+1:], b.messages[index:])
	b.messages[index] = ai.Message{Role: role, Content: content}
	b.tokens += b.counter.CountTokens(content)
}

// TokenLength returns the running token length of the whole window.
func (b *Builder) TokenLength() int {
	return b.tokens
}

// Messages returns the ordered message sequence.
func (b *Builder) Messages() []ai.Message {
	return b.messages
}

// Build assembles a window: the system prompt at index 0, the few-shot
// examples after it, the anchor user message at the fixed index
// len(fewShots)+1, and as much history as the budget allows spliced in
// before the anchor.
//
// History is walked in the order supplied by the caller; each turn's
// messages are inserted at the anchor index so every new insertion pushes
// earlier ones outward, preserving chronological order around the anchor.
// Callers wanting the most recent turns kept must therefore supply history
// newest-first.
//
// Growth stops once the running token length exceeds tokenBudget or the
// user-turn count exceeds maxHistoryTurns, whichever triggers first. The
// message already inserted when the limit is crossed is kept; the budget
// is a stop condition, not a retroactive trim.
func Build(systemPrompt string, fewShots []ai.Message, userContent string, history []Turn, counter ai.TokenCounter, tokenBudget, maxHistoryTurns int) []ai.Message {
	b := NewBuilder(systemPrompt, counter)

	// Examples showing the model what responses we want. It will try to
	// mimic them within the rules laid out in the system message.
	for _, shot := range fewShots {
		b.Append(shot.Role, shot.Content)
	}

	anchorIndex := len(fewShots) + 1
	b.Insert(anchorIndex, ai.RoleUser, userContent)

	userTurns := 0
	for _, h := range history {
		if h.Bot != "" {
			b.Insert(anchorIndex, ai.RoleAssistant, h.Bot)
			if b.TokenLength() > tokenBudget {
				break
			}
		}
		if h.User != "" {
			b.Insert(anchorIndex, ai.RoleUser, h.User)
			userTurns++
			if b.TokenLength() > tokenBudget {
				break
			}
		}
		if userTurns > maxHistoryTurns {
			break
		}
	}

	return b.Messages()
}
