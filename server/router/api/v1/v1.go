package v1

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/ragchat/internal/profile"
	"github.com/hrygo/ragchat/server/chat"
	"github.com/hrygo/ragchat/server/middleware"
	"github.com/hrygo/ragchat/store"
)

// maxConcurrentTurns bounds in-flight chat turns. Each turn holds up to
// three completion calls plus a search, so this caps the outbound load.
const maxConcurrentTurns = 8

type APIV1Service struct {
	Profile      *profile.Profile
	Store        *store.Store
	Orchestrator *chat.Orchestrator

	rateLimiter   *middleware.RateLimiter
	turnSemaphore *semaphore.Weighted
	logger        *slog.Logger
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, orchestrator *chat.Orchestrator, logger *slog.Logger) *APIV1Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIV1Service{
		Profile:       profile,
		Store:         store,
		Orchestrator:  orchestrator,
		rateLimiter:   middleware.NewRateLimiter(),
		turnSemaphore: semaphore.NewWeighted(maxConcurrentTurns),
		logger:        logger,
	}
}

// Register mounts the API routes on the given Echo instance.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	group := echoServer.Group("/api/v1")
	group.Use(echomw.CORS())
	group.Use(s.rateLimiter.Echo())

	group.POST("/chat", s.HandleChat)
	group.GET("/conversations", s.HandleListConversations)
}
