package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/ragchat/plugin/ai/window"
	"github.com/hrygo/ragchat/server/chat"
	"github.com/hrygo/ragchat/server/internal/errors"
	"github.com/hrygo/ragchat/store"
)

// HistoryEntry is one user/bot exchange as sent by the client.
type HistoryEntry struct {
	User string `json:"user"`
	Bot  string `json:"bot,omitempty"`
}

// OverridesRequest carries the per-turn options. SuggestFollowupQuestions
// is a pointer so an absent field defaults to true rather than false.
type OverridesRequest struct {
	RetrievalMode            string `json:"retrieval_mode,omitempty"`
	SemanticRanker           bool   `json:"semantic_ranker,omitempty"`
	SemanticCaptions         bool   `json:"semantic_captions,omitempty"`
	Top                      int    `json:"top,omitempty"`
	ExcludeCategory          string `json:"exclude_category,omitempty"`
	SuggestFollowupQuestions *bool  `json:"suggest_followup_questions,omitempty"`
}

// ChatRequest is the POST /api/v1/chat payload.
type ChatRequest struct {
	History           []HistoryEntry   `json:"history"`
	ConversationID    string           `json:"conversation_id,omitempty"`
	IsNewConversation bool             `json:"is_new_conversation,omitempty"`
	SessionID         string           `json:"session_id,omitempty"`
	Overrides         OverridesRequest `json:"overrides"`
}

// ChatResponse is the turn result payload.
type ChatResponse struct {
	ConversationID    string   `json:"conversation_id"`
	ConversationTopic string   `json:"conversation_topic,omitempty"`
	DataPoints        []string `json:"data_points"`
	Answer            string   `json:"answer"`
	Thoughts          string   `json:"thoughts"`
	FollowupQuestions []string `json:"followup_questions"`
}

// HandleChat runs one conversational retrieval turn.
func (s *APIV1Service) HandleChat(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.turnSemaphore.Acquire(ctx, 1); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server is at capacity")
	}
	defer s.turnSemaphore.Release(1)

	request := &ChatRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if len(request.History) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "history must not be empty")
	}

	suggestFollowUp := true
	if request.Overrides.SuggestFollowupQuestions != nil {
		suggestFollowUp = *request.Overrides.SuggestFollowupQuestions
	}

	history := make([]window.Turn, 0, len(request.History))
	for _, entry := range request.History {
		history = append(history, window.Turn{User: entry.User, Bot: entry.Bot})
	}

	sessionID := request.SessionID
	if sessionID == "" {
		sessionID = shortuuid.New()
	}

	response, err := s.Orchestrator.RunTurn(ctx, &chat.TurnRequest{
		SessionID: sessionID,
		UserID:    userID(c),
		History:   history,
		Overrides: chat.Overrides{
			RetrievalMode:     chat.RetrievalMode(request.Overrides.RetrievalMode),
			SemanticRanker:    request.Overrides.SemanticRanker,
			SemanticCaptions:  request.Overrides.SemanticCaptions,
			Top:               request.Overrides.Top,
			ExcludeCategory:   request.Overrides.ExcludeCategory,
			ConversationID:    request.ConversationID,
			IsNewConversation: request.IsNewConversation,
			SuggestFollowUp:   suggestFollowUp,
		},
	})
	if err != nil {
		return turnErrorToHTTP(c, err)
	}

	return c.JSON(http.StatusOK, &ChatResponse{
		ConversationID:    response.ConversationID,
		ConversationTopic: response.ConversationTopic,
		DataPoints:        response.DataPoints,
		Answer:            response.Answer,
		Thoughts:          response.Thoughts,
		FollowupQuestions: response.FollowUp,
	})
}

// ConversationResponse is one conversation in the list payload.
type ConversationResponse struct {
	ID        string `json:"id"`
	Topic     string `json:"topic,omitempty"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time,omitempty"`
}

// HandleListConversations lists the calling user's conversations.
func (s *APIV1Service) HandleListConversations(c echo.Context) error {
	ctx := c.Request().Context()
	uid := userID(c)
	conversations, err := s.Store.ListConversations(ctx, &store.FindConversation{UserID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list conversations failed")
	}

	response := make([]*ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		item := &ConversationResponse{
			ID:        conversation.ID,
			StartTime: conversation.StartTime,
		}
		if conversation.Topic != nil {
			item.Topic = *conversation.Topic
		}
		if conversation.EndTime != nil {
			item.EndTime = *conversation.EndTime
		}
		response = append(response, item)
	}
	return c.JSON(http.StatusOK, response)
}

// userID resolves the caller identity. Auth is fronted by a gateway, so
// the identity arrives as a trusted header; anonymous callers share one
// bucket.
func userID(c echo.Context) string {
	if id := c.Request().Header.Get("X-User-Id"); id != "" {
		return id
	}
	return "anonymous"
}

// turnErrorToHTTP maps typed pipeline errors to HTTP statuses. Upstream
// failures surface as 502 so clients can distinguish them from bugs here.
func turnErrorToHTTP(c echo.Context, err error) error {
	code := errors.GetCodeFromError(err, errors.ErrCodeStore)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeInvalidArgument:
		status = http.StatusBadRequest
	case errors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case errors.ErrCodeTransport, errors.ErrCodeMalformedAnswer:
		status = http.StatusBadGateway
	case errors.ErrCodeContextCanceled:
		status = http.StatusRequestTimeout
	}
	return c.JSON(status, map[string]string{
		"error": err.Error(),
		"code":  string(code),
	})
}
