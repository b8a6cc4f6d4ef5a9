package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/ragchat/plugin/ai"
	"github.com/hrygo/ragchat/plugin/ai/search"
	"github.com/hrygo/ragchat/plugin/ai/window"
	"github.com/hrygo/ragchat/server/internal/errors"
	"github.com/hrygo/ragchat/server/internal/observability"
	"github.com/hrygo/ragchat/store"
)

// defaultMaxHistoryTurns bounds history depth when a stage sets no
// tighter cap.
const defaultMaxHistoryTurns = 100

// ConversationStore is the persistence contract the orchestrator needs.
// *store.Store satisfies it.
type ConversationStore interface {
	CreateConversationIfNotExists(ctx context.Context, id, sessionID, userID string) (*store.Conversation, error)
	LoadHistory(ctx context.Context, conversationID string) ([]*store.Interaction, error)
	SaveConversation(ctx context.Context, conversation *store.Conversation) error
	AppendInteraction(ctx context.Context, conversationID, userID, userContent, botContent string) (*store.Interaction, error)
}

// TurnRequest is one incoming user turn. SessionID and UserID are
// resolved by the caller (auth is outside this package).
//
// History is informational only: past conversation resolution the
// orchestrator's authoritative context always comes from the store, and
// the caller-supplied history is ignored. Its last user entry is the
// question being asked.
type TurnRequest struct {
	SessionID string
	UserID    string
	History   []window.Turn
	Overrides Overrides
}

// TurnResponse is the assembled turn payload.
type TurnResponse struct {
	ConversationID    string
	ConversationTopic string
	DataPoints        []string
	Answer            string
	FollowUp          []string
	Thoughts          string
}

// Orchestrator sequences one turn: rewrite, retrieve, synthesize,
// persist, follow-up. Stages are strictly sequential; each one's output
// feeds the next. Safe for concurrent use across turns.
type Orchestrator struct {
	rewriter    *QueryRewriter
	retriever   *Retriever
	synthesizer *AnswerSynthesizer
	followUp    *FollowUpGenerator
	store       ConversationStore
	logger      *slog.Logger
}

// NewOrchestrator wires the pipeline stages.
func NewOrchestrator(
	completion ai.CompletionService,
	embedding ai.EmbeddingService,
	index search.Index,
	conversationStore ConversationStore,
	counter ai.TokenCounter,
	tokenLimit int,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		rewriter:    NewQueryRewriter(completion, counter, tokenLimit),
		retriever:   NewRetriever(embedding, index),
		synthesizer: NewAnswerSynthesizer(completion, counter, tokenLimit),
		followUp:    NewFollowUpGenerator(completion, counter, tokenLimit),
		store:       conversationStore,
		logger:      logger,
	}
}

// RunTurn executes one full turn. Any stage failure aborts the turn with
// no partial response; only a follow-up parse failure is absorbed.
func (o *Orchestrator) RunTurn(ctx context.Context, req *TurnRequest) (*TurnResponse, error) {
	reqCtx := observability.NewRequestContext(o.logger, req.UserID)

	overrides := req.Overrides
	if err := overrides.Validate(); err != nil {
		return nil, err
	}

	question := latestQuestion(req.History)
	if question == "" {
		return nil, errors.InvalidArgument("history has no user question")
	}

	reqCtx.Info("turn started",
		slog.String(observability.LogFieldRetrievalMode, string(overrides.RetrievalMode)),
		slog.Int(observability.LogFieldQuestionLen, len(question)),
	)

	// Resolve the conversation and reload its persisted history. The
	// store is the source of truth; the caller-supplied history is
	// discarded here.
	conversationID := overrides.ConversationID
	if conversationID == "" {
		conversationID = shortuuid.New()
	}
	conversation, err := o.store.CreateConversationIfNotExists(ctx, conversationID, req.SessionID, req.UserID)
	if err != nil {
		return nil, errors.Store("create-or-resume conversation failed", err)
	}
	interactions, err := o.store.LoadHistory(ctx, conversation.ID)
	if err != nil {
		return nil, errors.Store("load history failed", err)
	}
	history := historyWindow(interactions)

	// STEP 1: generate an optimized keyword search query from the chat
	// history and the last question.
	queryText, _, err := o.rewriter.Rewrite(ctx, question, history)
	if err != nil {
		return nil, o.failTurn(reqCtx, "rewrite", err)
	}
	reqCtx.Debug("query rewritten", slog.String("query", queryText))

	// STEP 2: retrieve relevant documents with the optimized query.
	dataPoints, grounding, err := o.retriever.Retrieve(ctx, queryText, &overrides)
	if err != nil {
		return nil, o.failTurn(reqCtx, "retrieve", err)
	}
	reqCtx.Debug("documents retrieved", slog.Int(observability.LogFieldResultCount, len(dataPoints)))

	// STEP 3: generate a content-specific answer from the search results.
	answer, answerMessages, err := o.synthesizer.Synthesize(ctx, question, grounding)
	if err != nil {
		return nil, o.failTurn(reqCtx, "synthesize", err)
	}
	lastMessages := answerMessages

	// Persist the turn. The answer is already computed, but it is not
	// returned if persistence fails: the store stays the single source
	// of truth for future turns.
	now := time.Now().Unix()
	conversation.EndTime = &now
	if overrides.IsNewConversation {
		topic := answer.Topic
		conversation.Topic = &topic
	}
	if err := o.store.SaveConversation(ctx, conversation); err != nil {
		return nil, o.failTurn(reqCtx, "persist", errors.Store("save conversation failed", err))
	}
	if _, err := o.store.AppendInteraction(ctx, conversation.ID, req.UserID, question, answer.Answer); err != nil {
		return nil, o.failTurn(reqCtx, "persist", errors.Store("append interaction failed", err))
	}

	// STEP 4: generate a list of follow up questions. The window sees
	// only the history as it stood before this turn; neither the current
	// question nor the new answer is folded in.
	followUps := []string{}
	if overrides.SuggestFollowUp {
		var followUpMessages []ai.Message
		followUps, followUpMessages, err = o.followUp.Generate(ctx, question, history)
		if err != nil {
			return nil, o.failTurn(reqCtx, "follow_up", err)
		}
		lastMessages = followUpMessages
	}

	reqCtx.Info("turn completed",
		slog.String(observability.LogFieldConversationID, conversation.ID),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
	)

	topic := ""
	if conversation.Topic != nil {
		topic = *conversation.Topic
	}
	return &TurnResponse{
		ConversationID:    conversation.ID,
		ConversationTopic: topic,
		DataPoints:        dataPoints,
		Answer:            answer.Answer,
		FollowUp:          followUps,
		Thoughts:          buildThoughts(queryText, lastMessages),
	}, nil
}

// failTurn logs a stage failure with its error code and returns the
// error unchanged.
func (o *Orchestrator) failTurn(reqCtx *observability.RequestContext, stage string, err error) error {
	reqCtx.Error("turn failed", err,
		slog.String(observability.LogFieldStage, stage),
		slog.String(observability.LogFieldErrorCode, string(errors.GetCodeFromError(err, errors.ErrCodeTransport))),
	)
	return err
}

// latestQuestion returns the newest user entry of the caller-supplied
// history, which is the question being asked this turn.
func latestQuestion(history []window.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].User != "" {
			return history[i].User
		}
	}
	return ""
}

// historyWindow converts persisted interactions to window turns,
// newest-first, so the window builder keeps the most recent turns when
// the token budget cuts history off.
func historyWindow(interactions []*store.Interaction) []window.Turn {
	turns := make([]window.Turn, 0, len(interactions))
	for i := len(interactions) - 1; i >= 0; i-- {
		turns = append(turns, window.Turn{
			User: interactions[i].UserContent,
			Bot:  interactions[i].BotContent,
		})
	}
	return turns
}

// buildThoughts renders the diagnostic trace: the rewritten query plus
// the exact message sequence sent to the last completion call.
func buildThoughts(queryText string, messages []ai.Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = m.Role + ": " + m.Content
	}
	display := strings.Join(lines, "\n\n")
	return "Searched for:<br>" + queryText + "<br><br>Conversations:<br>" + strings.ReplaceAll(display, "\n", "<br>")
}
