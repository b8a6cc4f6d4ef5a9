package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/ragchat/internal/profile"
	"github.com/hrygo/ragchat/plugin/ai"
	"github.com/hrygo/ragchat/plugin/ai/search"
	"github.com/hrygo/ragchat/server/chat"
	"github.com/hrygo/ragchat/store"
	"github.com/hrygo/ragchat/store/db/sqlite"
)

type fakeCompletion struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeCompletion) Complete(_ context.Context, _ *ai.CompletionRequest) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i >= len(f.responses) {
		return "", echo.ErrInternalServerError
	}
	return f.responses[i], nil
}

type fakeEmbedding struct{}

func (fakeEmbedding) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (fakeEmbedding) Dimensions() int { return 3 }

type charCounter struct{}

func (charCounter) CountTokens(text string) int { return len(text) }

const answerJSON = `{"topic": "Advising", "answer": "Advising pairs students with advisors [guide.pdf#page=1]."}`

func newTestService(t *testing.T, completion *fakeCompletion) (*APIV1Service, *echo.Echo) {
	t.Helper()
	testProfile := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "ragchat_test.db"),
	}
	driver, err := sqlite.NewDB(testProfile)
	require.NoError(t, err)
	require.NoError(t, driver.Migrate(context.Background()))
	t.Cleanup(func() { _ = driver.Close() })
	st := store.New(driver, testProfile)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orchestrator := chat.NewOrchestrator(completion, fakeEmbedding{}, search.NewMockIndex(), st, charCounter{}, 4096, logger)
	service := NewAPIV1Service(testProfile, st, orchestrator, logger)

	echoServer := echo.New()
	service.Register(echoServer)
	return service, echoServer
}

func postChat(echoServer *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	echoServer.ServeHTTP(rec, req)
	return rec
}

func TestHandleChat(t *testing.T) {
	completion := &fakeCompletion{responses: []string{
		"academic advising",
		answerJSON,
		`["How do I meet my advisor?"]`,
	}}
	_, echoServer := newTestService(t, completion)

	rec := postChat(echoServer, `{
		"history": [{"user": "What is academic advising?"}],
		"is_new_conversation": true,
		"overrides": {"retrieval_mode": "hybrid", "top": 2}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	response := &ChatResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
	assert.NotEmpty(t, response.ConversationID)
	assert.Equal(t, "Advising", response.ConversationTopic)
	assert.Equal(t, "Advising pairs students with advisors [guide.pdf#page=1].", response.Answer)
	assert.Len(t, response.DataPoints, 2)
	assert.Equal(t, []string{"How do I meet my advisor?"}, response.FollowupQuestions)
	assert.Contains(t, response.Thoughts, "Searched for:<br>academic advising")

	// Follow-up defaulted to on: three completion calls were made.
	assert.Equal(t, 3, completion.calls)
}

func TestHandleChatSuggestFollowupDisabled(t *testing.T) {
	completion := &fakeCompletion{responses: []string{"academic advising", answerJSON}}
	_, echoServer := newTestService(t, completion)

	rec := postChat(echoServer, `{
		"history": [{"user": "What is academic advising?"}],
		"overrides": {"suggest_followup_questions": false}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, completion.calls)
}

func TestHandleChatBadRequests(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		_, echoServer := newTestService(t, &fakeCompletion{})
		rec := postChat(echoServer, `{"history": [`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty history", func(t *testing.T) {
		_, echoServer := newTestService(t, &fakeCompletion{})
		rec := postChat(echoServer, `{"history": []}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown retrieval mode", func(t *testing.T) {
		_, echoServer := newTestService(t, &fakeCompletion{})
		rec := postChat(echoServer, `{
			"history": [{"user": "hi"}],
			"overrides": {"retrieval_mode": "graph"}
		}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
	})
}

func TestHandleChatMalformedAnswerIsBadGateway(t *testing.T) {
	completion := &fakeCompletion{responses: []string{"academic advising", "not json"}}
	_, echoServer := newTestService(t, completion)

	rec := postChat(echoServer, `{"history": [{"user": "What is academic advising?"}]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "MALFORMED_ANSWER")
}

func TestHandleChatUpstreamTimeoutIsGatewayTimeout(t *testing.T) {
	completion := &fakeCompletion{
		errs: []error{fmt.Errorf("chat completion: %w", context.DeadlineExceeded)},
	}
	_, echoServer := newTestService(t, completion)

	rec := postChat(echoServer, `{"history": [{"user": "What is academic advising?"}]}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "TIMEOUT")
}

func TestHandleListConversations(t *testing.T) {
	completion := &fakeCompletion{responses: []string{"academic advising", answerJSON}}
	_, echoServer := newTestService(t, completion)

	rec := postChat(echoServer, `{
		"history": [{"user": "What is academic advising?"}],
		"is_new_conversation": true,
		"overrides": {"suggest_followup_questions": false}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("X-User-Id", "user-1")
	listRec := httptest.NewRecorder()
	echoServer.ServeHTTP(listRec, req)
	require.Equal(t, http.StatusOK, listRec.Code)

	var conversations []*ConversationResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &conversations))
	require.Len(t, conversations, 1)
	assert.Equal(t, "Advising", conversations[0].Topic)
	assert.NotZero(t, conversations[0].StartTime)

	// A different user sees nothing.
	otherReq := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	otherReq.Header.Set("X-User-Id", "user-2")
	otherRec := httptest.NewRecorder()
	echoServer.ServeHTTP(otherRec, otherReq)
	require.Equal(t, http.StatusOK, otherRec.Code)
	var otherConversations []*ConversationResponse
	require.NoError(t, json.Unmarshal(otherRec.Body.Bytes(), &otherConversations))
	assert.Empty(t, otherConversations)
}
