package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/loom-ai/loom/internal/api"
	"github.com/loom-ai/loom/internal/domain"
	"github.com/loom-ai/loom/internal/orchestrator"
	"github.com/loom-ai/loom/internal/pagination"
)

type ChatService interface {
	CreateConversation(ctx context.Context, title string, ownerKind domain.OwnerKind, ownerID string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	History(ctx context.Context, conversationID string) ([]*domain.Message, error)
	ListConversations(ctx context.Context, cursor string, limit int) (*pagination.PageResult[*domain.Conversation], error)
	DeleteConversation(ctx context.Context, id string) error
	RunAgentTurn(ctx context.Context, a domain.Agent, conversationID, userMessage string) (*orchestrator.TurnResult, error)
	RunCommunicationTurn(ctx context.Context, comm domain.Communication, conversationID, userMessage string) (*orchestrator.TurnResult, error)
}

type ConversationHandler struct {
	svc ChatService
}

func NewConversationHandler(svc ChatService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// FoundationPayload describes the LLM backend an agent runs on.
type FoundationPayload struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	ModelID  string `json:"model_id"`
}

// LLMConfigPayload is the sampling profile for an agent's completions.
type LLMConfigPayload struct {
	Temperature      float32  `json:"temperature,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	TopP             float32  `json:"top_p,omitempty"`
	FrequencyPenalty float32  `json:"frequency_penalty,omitempty"`
	PresencePenalty  float32  `json:"presence_penalty,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
	SystemPrompt     string   `json:"system_prompt,omitempty"`
}

// AgentPayload is an agent configuration snapshot. Like knowledge bases,
// agents are caller-owned; every turn request carries the full config.
type AgentPayload struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	Type           string                 `json:"type"`
	Foundation     FoundationPayload      `json:"foundation"`
	Config         LLMConfigPayload       `json:"config,omitempty"`
	Tools          []string               `json:"tools,omitempty"`
	KnowledgeBases []KnowledgeBasePayload `json:"knowledge_bases,omitempty"`
	MaxIterations  int                    `json:"max_iterations,omitempty"`
}

func (p AgentPayload) ToDomain() domain.Agent {
	kbs := make([]domain.KnowledgeBase, len(p.KnowledgeBases))
	for i, kb := range p.KnowledgeBases {
		kbs[i] = kb.ToDomain()
	}
	return domain.Agent{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Type:        domain.AgentType(p.Type),
		Foundation: domain.Foundation{
			ID:       p.Foundation.ID,
			Provider: domain.LLMProvider(p.Foundation.Provider),
			ModelID:  p.Foundation.ModelID,
		},
		Config: domain.LLMConfig{
			Temperature:      p.Config.Temperature,
			MaxTokens:        p.Config.MaxTokens,
			TopP:             p.Config.TopP,
			FrequencyPenalty: p.Config.FrequencyPenalty,
			PresencePenalty:  p.Config.PresencePenalty,
			StopSequences:    p.Config.StopSequences,
			SystemPrompt:     p.Config.SystemPrompt,
		},
		Tools:          p.Tools,
		KnowledgeBases: kbs,
		MaxIterations:  p.MaxIterations,
	}
}

// CommunicationPayload is a communication configuration snapshot. Member
// order matters: the first agent is the tie-break responder.
type CommunicationPayload struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Agents      []AgentPayload `json:"agents"`
}

func (p CommunicationPayload) ToDomain() domain.Communication {
	agents := make([]domain.Agent, len(p.Agents))
	for i, a := range p.Agents {
		agents[i] = a.ToDomain()
	}
	return domain.Communication{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Agents:      agents,
	}
}

type CreateConversationRequest struct {
	Title     string `json:"title"`
	OwnerKind string `json:"owner_kind"`
	OwnerID   string `json:"owner_id"`
}

type AgentTurnRequest struct {
	Agent   AgentPayload `json:"agent"`
	Message string       `json:"message"`
}

type CommunicationTurnRequest struct {
	Communication CommunicationPayload `json:"communication"`
	Message       string               `json:"message"`
}

type ConversationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	OwnerKind string `json:"owner_kind"`
	OwnerID   string `json:"owner_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func conversationToResponse(c *domain.Conversation) *ConversationResponse {
	return &ConversationResponse{
		ID:        c.ID,
		Title:     c.Title,
		OwnerKind: string(c.OwnerKind),
		OwnerID:   c.OwnerID,
		CreatedAt: c.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: c.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	AgentID        string `json:"agent_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func messageToResponse(m *domain.Message) *MessageResponse {
	return &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Content:        m.Content,
		AgentID:        m.AgentID,
		CreatedAt:      m.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

type TurnResponse struct {
	Message     *MessageResponse `json:"message"`
	ResponderID string           `json:"responder_id"`
	Partial     bool             `json:"partial"`
}

func turnToResponse(result *orchestrator.TurnResult) *TurnResponse {
	return &TurnResponse{
		Message:     messageToResponse(&result.Message),
		ResponderID: result.ResponderID,
		Partial:     result.Partial,
	}
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OwnerID == "" {
		api.Error(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	conv, err := h.svc.CreateConversation(r.Context(), req.Title, domain.OwnerKind(req.OwnerKind), req.OwnerID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, conversationToResponse(conv))
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	conv, err := h.svc.GetConversation(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conversationToResponse(conv))
}

type ConversationListResponse struct {
	Items   []*ConversationResponse `json:"items"`
	Cursor  string                  `json:"cursor,omitempty"`
	HasMore bool                    `json:"has_more"`
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := h.svc.ListConversations(r.Context(), cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ConversationResponse, len(page.Items))
	for i, c := range page.Items {
		responses[i] = conversationToResponse(c)
	}

	api.Success(w, http.StatusOK, ConversationListResponse{
		Items:   responses,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *ConversationHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	messages, err := h.svc.History(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*MessageResponse, len(messages))
	for i, m := range messages {
		responses[i] = messageToResponse(m)
	}

	api.Success(w, http.StatusOK, responses)
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.DeleteConversation(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"id": id, "deleted": "true"})
}

// AgentTurn runs one turn of an agent-owned conversation.
func (h *ConversationHandler) AgentTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req AgentTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := h.svc.RunAgentTurn(r.Context(), req.Agent.ToDomain(), id, req.Message)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, turnToResponse(result))
}

// CommunicationTurn runs one turn of a communication-owned conversation.
// Exactly one member agent answers.
func (h *ConversationHandler) CommunicationTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req CommunicationTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := h.svc.RunCommunicationTurn(r.Context(), req.Communication.ToDomain(), id, req.Message)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, turnToResponse(result))
}
