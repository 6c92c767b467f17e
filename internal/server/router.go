package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loom-ai/loom/internal/api"
	"github.com/loom-ai/loom/internal/api/handlers"
	"github.com/loom-ai/loom/internal/api/middleware"
)

type RouterConfig struct {
	KnowledgeBaseHandler *handlers.KnowledgeBaseHandler
	ConversationHandler  *handlers.ConversationHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 10 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/knowledge-bases", func(r chi.Router) {
		r.Post("/documents", cfg.KnowledgeBaseHandler.IngestDocument)
		r.Post("/retrieve", cfg.KnowledgeBaseHandler.Retrieve)
		r.Get("/{kbID}/documents", cfg.KnowledgeBaseHandler.ListDocuments)
	})

	r.Route("/documents", func(r chi.Router) {
		r.Get("/{id}", cfg.KnowledgeBaseHandler.GetDocument)
		r.Post("/{id}/retry", cfg.KnowledgeBaseHandler.RetryDocument)
		r.Delete("/{id}", cfg.KnowledgeBaseHandler.DeleteDocument)
	})

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", cfg.ConversationHandler.Create)
		r.Get("/", cfg.ConversationHandler.List)
		r.Get("/{id}", cfg.ConversationHandler.Get)
		r.Get("/{id}/messages", cfg.ConversationHandler.History)
		r.Delete("/{id}", cfg.ConversationHandler.Delete)
		r.Post("/{id}/agent-turn", cfg.ConversationHandler.AgentTurn)
		r.Post("/{id}/communication-turn", cfg.ConversationHandler.CommunicationTurn)
	})

	return r
}
