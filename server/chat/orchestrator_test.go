package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/ragchat/plugin/ai"
	"github.com/hrygo/ragchat/plugin/ai/search"
	"github.com/hrygo/ragchat/plugin/ai/window"
	"github.com/hrygo/ragchat/server/internal/errors"
	"github.com/hrygo/ragchat/store"
)

// testCounter counts one token per character, which makes budget
// arithmetic exact in tests.
type testCounter struct{}

func (testCounter) CountTokens(text string) int { return len(text) }

// scriptedCompletion replays canned responses in call order and records
// every request it saw.
type scriptedCompletion struct {
	responses []string
	errs      []error
	requests  []*ai.CompletionRequest
}

func (c *scriptedCompletion) Complete(_ context.Context, req *ai.CompletionRequest) (string, error) {
	i := len(c.requests)
	c.requests = append(c.requests, req)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i >= len(c.responses) {
		return "", fmt.Errorf("unexpected completion call %d", i)
	}
	return c.responses[i], nil
}

type mockEmbedding struct {
	vector []float32
	err    error
	texts  []string
}

func (e *mockEmbedding) Embed(_ context.Context, text string) ([]float32, error) {
	e.texts = append(e.texts, text)
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func (e *mockEmbedding) Dimensions() int { return len(e.vector) }

type captureIndex struct {
	documents []*search.Document
	err       error
	requests  []*search.Request
}

func (i *captureIndex) Search(_ context.Context, req *search.Request) ([]*search.Document, error) {
	i.requests = append(i.requests, req)
	if i.err != nil {
		return nil, i.err
	}
	return i.documents, nil
}

// memoryStore is an in-memory ConversationStore.
type memoryStore struct {
	conversations map[string]*store.Conversation
	interactions  map[string][]*store.Interaction
	nextID        int64
	saveErr       error
	appendErr     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		conversations: map[string]*store.Conversation{},
		interactions:  map[string][]*store.Interaction{},
	}
}

func (m *memoryStore) CreateConversationIfNotExists(_ context.Context, id, sessionID, userID string) (*store.Conversation, error) {
	if existing, ok := m.conversations[id]; ok {
		return existing, nil
	}
	conversation := &store.Conversation{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		StartTime: time.Now().Unix(),
	}
	m.conversations[id] = conversation
	return conversation, nil
}

func (m *memoryStore) LoadHistory(_ context.Context, conversationID string) ([]*store.Interaction, error) {
	return m.interactions[conversationID], nil
}

func (m *memoryStore) SaveConversation(_ context.Context, conversation *store.Conversation) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.conversations[conversation.ID] = conversation
	return nil
}

func (m *memoryStore) AppendInteraction(_ context.Context, conversationID, userID, userContent, botContent string) (*store.Interaction, error) {
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	m.nextID++
	interaction := &store.Interaction{
		ID:             m.nextID,
		ConversationID: conversationID,
		UserID:         userID,
		UserContent:    userContent,
		BotContent:     botContent,
		CreatedTs:      time.Now().Unix(),
	}
	m.interactions[conversationID] = append(m.interactions[conversationID], interaction)
	return interaction, nil
}

func testDocuments() []*search.Document {
	return []*search.Document{
		{SourcePage: "advising-overview.pdf#page=1", Content: "Academic advising pairs each\nstudent with a faculty advisor."},
		{SourcePage: "registration-guide.pdf#page=4", Content: "Advisors must approve course plans before registration opens."},
		{SourcePage: "degree-audit.pdf#page=2", Content: "The degree audit tracks progress toward graduation requirements."},
	}
}

const testAnswerJSON = `{"topic": "Academic advising", "answer": "Academic advising pairs students with faculty advisors [advising-overview.pdf#page=1]."}`

func newTestOrchestrator(completion *scriptedCompletion, embedding *mockEmbedding, index *captureIndex, st ConversationStore) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrchestrator(completion, embedding, index, st, testCounter{}, 4096, logger)
}

func question(q string) []window.Turn {
	return []window.Turn{{User: q}}
}

func TestRunTurnHybrid(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{
		"academic advising overview",
		testAnswerJSON,
		`["How do I pick an advisor?", "When does registration open?", "What is a degree audit?"]`,
	}}
	embedding := &mockEmbedding{vector: []float32{0.1, 0.2, 0.3}}
	index := &captureIndex{documents: testDocuments()}
	st := newMemoryStore()
	orchestrator := newTestOrchestrator(completion, embedding, index, st)

	resp, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
		SessionID: "session-1",
		UserID:    "user-1",
		History:   question("What is academic advising?"),
		Overrides: Overrides{
			RetrievalMode:     RetrievalModeHybrid,
			IsNewConversation: true,
			SuggestFollowUp:   true,
		},
	})
	require.NoError(t, err)

	// The rewritten query drives both search legs.
	require.Len(t, embedding.texts, 1)
	assert.Equal(t, "academic advising overview", embedding.texts[0])
	require.Len(t, index.requests, 1)
	searchReq := index.requests[0]
	assert.Equal(t, "academic advising overview", searchReq.Text)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, searchReq.Vector)
	assert.Equal(t, "contentVector", searchReq.VectorFields)
	assert.Equal(t, 3, searchReq.Top)

	// Result lines are projected as "<sourcePage>: <single-line text>".
	require.Len(t, resp.DataPoints, 3)
	assert.Equal(t, "advising-overview.pdf#page=1: Academic advising pairs each student with a faculty advisor.", resp.DataPoints[0])

	assert.Equal(t, "Academic advising pairs students with faculty advisors [advising-overview.pdf#page=1].", resp.Answer)
	assert.Equal(t, "Academic advising", resp.ConversationTopic)
	assert.Len(t, resp.FollowUp, 3)
	assert.True(t, strings.HasPrefix(resp.Thoughts, "Searched for:<br>academic advising overview<br><br>Conversations:<br>"))

	// The turn is persisted: a conversation with topic and end time, and
	// one interaction carrying question and answer.
	require.NotEmpty(t, resp.ConversationID)
	conversation := st.conversations[resp.ConversationID]
	require.NotNil(t, conversation)
	require.NotNil(t, conversation.Topic)
	assert.Equal(t, "Academic advising", *conversation.Topic)
	require.NotNil(t, conversation.EndTime)
	interactions := st.interactions[resp.ConversationID]
	require.Len(t, interactions, 1)
	assert.Equal(t, "What is academic advising?", interactions[0].UserContent)
	assert.Equal(t, resp.Answer, interactions[0].BotContent)
}

func TestRunTurnRewriteRefusalFallsBackToQuestion(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{" 0 ", testAnswerJSON}}
	embedding := &mockEmbedding{vector: []float32{0.5}}
	index := &captureIndex{documents: testDocuments()}
	orchestrator := newTestOrchestrator(completion, embedding, index, newMemoryStore())

	resp, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
		UserID:    "user-1",
		History:   question("What is academic advising?"),
		Overrides: Overrides{RetrievalMode: RetrievalModeHybrid},
	})
	require.NoError(t, err)

	// The raw question, verbatim, replaces the refused rewrite.
	require.Len(t, index.requests, 1)
	assert.Equal(t, "What is academic advising?", index.requests[0].Text)
	assert.Equal(t, "What is academic advising?", embedding.texts[0])
	assert.True(t, strings.HasPrefix(resp.Thoughts, "Searched for:<br>What is academic advising?<br>"))
}

func TestRunTurnRetrievalModes(t *testing.T) {
	t.Run("vectors drops the text leg but embeds", func(t *testing.T) {
		completion := &scriptedCompletion{responses: []string{"advising", testAnswerJSON}}
		embedding := &mockEmbedding{vector: []float32{0.5}}
		index := &captureIndex{documents: testDocuments()}
		orchestrator := newTestOrchestrator(completion, embedding, index, newMemoryStore())

		_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
			UserID:    "user-1",
			History:   question("What is academic advising?"),
			Overrides: Overrides{RetrievalMode: RetrievalModeVectors},
		})
		require.NoError(t, err)
		require.Len(t, embedding.texts, 1)
		assert.Equal(t, "advising", embedding.texts[0])
		req := index.requests[0]
		assert.Empty(t, req.Text)
		assert.Equal(t, search.QueryTypeSimple, req.QueryType)
		assert.NotEmpty(t, req.Vector)
	})

	t.Run("text skips the embedding call", func(t *testing.T) {
		completion := &scriptedCompletion{responses: []string{"advising", testAnswerJSON}}
		embedding := &mockEmbedding{vector: []float32{0.5}}
		index := &captureIndex{documents: testDocuments()}
		orchestrator := newTestOrchestrator(completion, embedding, index, newMemoryStore())

		_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
			UserID:    "user-1",
			History:   question("What is academic advising?"),
			Overrides: Overrides{RetrievalMode: RetrievalModeText},
		})
		require.NoError(t, err)
		assert.Empty(t, embedding.texts)
		req := index.requests[0]
		assert.Equal(t, "advising", req.Text)
		assert.Empty(t, req.Vector)
		assert.Empty(t, req.VectorFields)
	})

	t.Run("semantic ranker with captions sets semantic params", func(t *testing.T) {
		completion := &scriptedCompletion{responses: []string{"advising", testAnswerJSON}}
		index := &captureIndex{documents: []*search.Document{
			{SourcePage: "a.pdf", Content: "full body", Captions: []string{"first caption", "second\ncaption"}},
		}}
		orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, index, newMemoryStore())

		resp, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
			UserID:  "user-1",
			History: question("What is academic advising?"),
			Overrides: Overrides{
				RetrievalMode:    RetrievalModeText,
				SemanticRanker:   true,
				SemanticCaptions: true,
			},
		})
		require.NoError(t, err)
		req := index.requests[0]
		assert.Equal(t, search.QueryTypeSemantic, req.QueryType)
		assert.Equal(t, "en-us", req.QueryLanguage)
		assert.Equal(t, "lexicon", req.QuerySpeller)
		assert.Equal(t, "default", req.SemanticConfiguration)
		assert.Equal(t, search.CaptionExtractive, req.QueryCaption)
		// Captions replace the body, joined with " . " and flattened.
		require.Len(t, resp.DataPoints, 1)
		assert.Equal(t, "a.pdf: first caption . second caption", resp.DataPoints[0])
	})

	t.Run("unknown mode is rejected", func(t *testing.T) {
		orchestrator := newTestOrchestrator(&scriptedCompletion{}, &mockEmbedding{}, &captureIndex{}, newMemoryStore())
		_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
			UserID:    "user-1",
			History:   question("hi"),
			Overrides: Overrides{RetrievalMode: "graph"},
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	})
}

func TestRunTurnCategoryFilter(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{"advising", testAnswerJSON}}
	index := &captureIndex{documents: testDocuments()}
	orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, index, newMemoryStore())

	_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
		UserID:  "user-1",
		History: question("What is academic advising?"),
		Overrides: Overrides{
			RetrievalMode:   RetrievalModeText,
			ExcludeCategory: "Dean's List",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "category ne 'Dean''s List'", index.requests[0].Filter)
}

func TestRunTurnFollowUpParseFailureIsAbsorbed(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{
		"advising",
		testAnswerJSON,
		"I need more conversation history to suggest follow-ups.",
	}}
	orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{documents: testDocuments()}, newMemoryStore())

	resp, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
		UserID:    "user-1",
		History:   question("What is academic advising?"),
		Overrides: Overrides{SuggestFollowUp: true},
	})
	require.NoError(t, err)
	assert.NotNil(t, resp.FollowUp)
	assert.Empty(t, resp.FollowUp)
	assert.NotEmpty(t, resp.Answer)
}

func TestRunTurnSuggestFollowUpDisabled(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{"advising", testAnswerJSON}}
	orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{documents: testDocuments()}, newMemoryStore())

	resp, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
		UserID:    "user-1",
		History:   question("What is academic advising?"),
		Overrides: Overrides{SuggestFollowUp: false},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.FollowUp)
	// Exactly two completion calls: rewrite and synthesis.
	assert.Len(t, completion.requests, 2)
}

func TestRunTurnMalformedAnswerAborts(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{"advising", "Sorry, I cannot answer in JSON."}}
	st := newMemoryStore()
	orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{documents: testDocuments()}, st)

	_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
		UserID:    "user-1",
		History:   question("What is academic advising?"),
		Overrides: Overrides{ConversationID: "conv-1"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedAnswer))
	// Nothing was persisted for the aborted turn.
	assert.Empty(t, st.interactions["conv-1"])
}

func TestRunTurnPersistenceFailureAborts(t *testing.T) {
	t.Run("save conversation", func(t *testing.T) {
		st := newMemoryStore()
		st.saveErr = fmt.Errorf("disk full")
		completion := &scriptedCompletion{responses: []string{"advising", testAnswerJSON}}
		orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{documents: testDocuments()}, st)

		_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
			UserID:  "user-1",
			History: question("What is academic advising?"),
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeStore))
	})

	t.Run("append interaction", func(t *testing.T) {
		st := newMemoryStore()
		st.appendErr = fmt.Errorf("disk full")
		completion := &scriptedCompletion{responses: []string{"advising", testAnswerJSON}}
		orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{documents: testDocuments()}, st)

		_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
			UserID:  "user-1",
			History: question("What is academic advising?"),
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeStore))
	})
}

func TestRunTurnTransportFailureAborts(t *testing.T) {
	completion := &scriptedCompletion{
		responses: []string{""},
		errs:      []error{fmt.Errorf("connection refused")},
	}
	orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{}, newMemoryStore())

	_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
		UserID:  "user-1",
		History: question("What is academic advising?"),
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTransport))
}

func TestRunTurnDeadlineExceededIsTimeout(t *testing.T) {
	completion := &scriptedCompletion{
		responses: []string{""},
		errs:      []error{fmt.Errorf("chat completion: %w", context.DeadlineExceeded)},
	}
	orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{}, newMemoryStore())

	_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
		UserID:  "user-1",
		History: question("What is academic advising?"),
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))
}

func TestRunTurnCanceledContextIsContextCanceled(t *testing.T) {
	completion := &scriptedCompletion{
		responses: []string{""},
		errs:      []error{fmt.Errorf("chat completion: %w", context.Canceled)},
	}
	orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{}, newMemoryStore())

	_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{
		UserID:  "user-1",
		History: question("What is academic advising?"),
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeContextCanceled))
}

func TestRunTurnResumesConversationWithStoredHistory(t *testing.T) {
	st := newMemoryStore()
	ctx := context.Background()
	_, err := st.CreateConversationIfNotExists(ctx, "conv-7", "session-1", "user-1")
	require.NoError(t, err)
	_, err = st.AppendInteraction(ctx, "conv-7", "user-1", "What is academic advising?", "It pairs students with advisors.")
	require.NoError(t, err)
	_, err = st.AppendInteraction(ctx, "conv-7", "user-1", "Who approves course plans?", "Faculty advisors approve them.")
	require.NoError(t, err)

	completion := &scriptedCompletion{responses: []string{"registration deadline", testAnswerJSON}}
	orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{documents: testDocuments()}, st)

	resp, err := orchestrator.RunTurn(ctx, &TurnRequest{
		SessionID: "session-1",
		UserID:    "user-1",
		History:   question("When is the deadline?"),
		Overrides: Overrides{ConversationID: "conv-7"},
	})
	require.NoError(t, err)
	assert.Equal(t, "conv-7", resp.ConversationID)

	// The rewrite window carries the stored history in chronological
	// order between the few-shots and the wrapped question.
	rewriteMessages := completion.requests[0].Messages
	anchorIndex := len(queryPromptFewShots) + 1
	require.Len(t, rewriteMessages, anchorIndex+4+1)
	assert.Equal(t, "What is academic advising?", rewriteMessages[anchorIndex].Content)
	assert.Equal(t, "It pairs students with advisors.", rewriteMessages[anchorIndex+1].Content)
	assert.Equal(t, "Who approves course plans?", rewriteMessages[anchorIndex+2].Content)
	assert.Equal(t, "Faculty advisors approve them.", rewriteMessages[anchorIndex+3].Content)
	assert.Equal(t, queryWrapPrefix+"When is the deadline?", rewriteMessages[anchorIndex+4].Content)

	interactions := st.interactions["conv-7"]
	require.Len(t, interactions, 3)
	assert.Equal(t, "When is the deadline?", interactions[2].UserContent)
}

func TestRunTurnSynthesisWindowHasNoHistory(t *testing.T) {
	st := newMemoryStore()
	ctx := context.Background()
	_, err := st.CreateConversationIfNotExists(ctx, "conv-2", "session-1", "user-1")
	require.NoError(t, err)
	_, err = st.AppendInteraction(ctx, "conv-2", "user-1", "earlier question", "earlier answer")
	require.NoError(t, err)

	completion := &scriptedCompletion{responses: []string{"advising", testAnswerJSON}}
	orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{documents: testDocuments()}, st)

	_, err = orchestrator.RunTurn(ctx, &TurnRequest{
		UserID:    "user-1",
		History:   question("What is academic advising?"),
		Overrides: Overrides{ConversationID: "conv-2"},
	})
	require.NoError(t, err)

	// Synthesis sends exactly system + one user message folding the
	// question and its sources; prior turns never leak in.
	synthesisMessages := completion.requests[1].Messages
	require.Len(t, synthesisMessages, 2)
	assert.Equal(t, ai.RoleSystem, synthesisMessages[0].Role)
	assert.Equal(t, ai.RoleUser, synthesisMessages[1].Role)
	assert.Contains(t, synthesisMessages[1].Content, "What is academic advising?")
	assert.Contains(t, synthesisMessages[1].Content, "Sources:\n")
	assert.NotContains(t, synthesisMessages[1].Content, "earlier question")
}

func TestRunTurnFollowUpWindowUsesStoredHistoryOnly(t *testing.T) {
	st := newMemoryStore()
	ctx := context.Background()
	_, err := st.CreateConversationIfNotExists(ctx, "conv-3", "session-1", "user-1")
	require.NoError(t, err)
	_, err = st.AppendInteraction(ctx, "conv-3", "user-1", "What is academic advising?", "It pairs students with advisors.")
	require.NoError(t, err)

	completion := &scriptedCompletion{responses: []string{
		"registration dates",
		testAnswerJSON,
		`["What else?"]`,
	}}
	orchestrator := newTestOrchestrator(completion, &mockEmbedding{vector: []float32{1}}, &captureIndex{documents: testDocuments()}, st)

	_, err = orchestrator.RunTurn(ctx, &TurnRequest{
		UserID:  "user-1",
		History: question("When does registration open?"),
		Overrides: Overrides{
			ConversationID:  "conv-3",
			SuggestFollowUp: true,
		},
	})
	require.NoError(t, err)

	// The window carries the history as persisted before this turn; the
	// question just asked must not appear in it.
	followUpMessages := completion.requests[2].Messages
	require.Len(t, followUpMessages, 4)
	assert.Equal(t, "What is academic advising?", followUpMessages[1].Content)
	assert.Equal(t, "It pairs students with advisors.", followUpMessages[2].Content)
	assert.Equal(t, followUpQuestionsPrompt, followUpMessages[3].Content)
	for _, m := range followUpMessages {
		assert.NotEqual(t, "When does registration open?", m.Content)
	}
}

func TestRunTurnRejectsEmptyQuestion(t *testing.T) {
	orchestrator := newTestOrchestrator(&scriptedCompletion{}, &mockEmbedding{}, &captureIndex{}, newMemoryStore())
	_, err := orchestrator.RunTurn(context.Background(), &TurnRequest{UserID: "user-1"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}
