// Package server assembles the HTTP surface and the turn pipeline from a
// validated profile.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/ragchat/internal/profile"
	"github.com/hrygo/ragchat/plugin/ai"
	"github.com/hrygo/ragchat/plugin/ai/cache"
	"github.com/hrygo/ragchat/plugin/ai/search"
	"github.com/hrygo/ragchat/server/chat"
	apiv1 "github.com/hrygo/ragchat/server/router/api/v1"
	"github.com/hrygo/ragchat/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	searchDB   *sql.DB
	logger     *slog.Logger
}

func NewServer(ctx context.Context, serverProfile *profile.Profile, st *store.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomw.Recover())

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	if !serverProfile.IsAIConfigured() {
		logger.Warn("no AI API key configured, chat turns will fail at the completion call")
	}
	aiConfig := ai.NewConfigFromProfile(serverProfile)
	completion := ai.NewCompletionService(&aiConfig.Chat)
	embedding := ai.NewCachedEmbeddingService(
		ai.NewEmbeddingService(&aiConfig.Embedding),
		cache.NewLRUCache(1024, 10*time.Minute),
		aiConfig.Embedding.Model,
	)
	reranker := ai.NewRerankerService(&aiConfig.Reranker)
	tokenizer, err := ai.NewTokenizer(serverProfile.AIChatModel)
	if err != nil {
		return nil, errors.Wrap(err, "create tokenizer")
	}

	var index search.Index
	var searchDB *sql.DB
	switch serverProfile.SearchDriver {
	case "postgres":
		searchDB, err = sql.Open("postgres", serverProfile.SearchDSN)
		if err != nil {
			return nil, errors.Wrap(err, "open search database")
		}
		if err := searchDB.PingContext(ctx); err != nil {
			return nil, errors.Wrap(err, "ping search database")
		}
		index, err = search.NewPGIndex(searchDB, search.PGConfig{
			SourcePageColumn: serverProfile.SearchSourcePageField,
			ContentColumn:    serverProfile.SearchContentField,
		}, reranker)
		if err != nil {
			return nil, errors.Wrap(err, "create search index")
		}
	case "mock", "":
		logger.Info("using the seeded in-memory search index")
		index = search.NewMockIndex()
	default:
		return nil, errors.Errorf("unknown search driver: %s", serverProfile.SearchDriver)
	}

	orchestrator := chat.NewOrchestrator(completion, embedding, index, st, tokenizer, serverProfile.AIChatTokenLimit, logger)
	apiV1Service := apiv1.NewAPIV1Service(serverProfile, st, orchestrator, logger)
	apiV1Service.Register(echoServer)

	return &Server{
		Profile:    serverProfile,
		Store:      st,
		echoServer: echoServer,
		searchDB:   searchDB,
		logger:     logger,
	}, nil
}

func (s *Server) Start(_ context.Context) error {
	return s.echoServer.Start(fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port))
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shut down server", "error", err)
	}
	if s.searchDB != nil {
		if err := s.searchDB.Close(); err != nil {
			s.logger.Error("failed to close search database", "error", err)
		}
	}
	if err := s.Store.Close(); err != nil {
		s.logger.Error("failed to close store", "error", err)
	}
	s.logger.Info("server shutdown complete")
}
