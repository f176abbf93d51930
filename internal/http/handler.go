// Package http exposes the REST and SSE surface of the backend.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Ratheesh-2/jijnasaai/internal/chat"
	"github.com/Ratheesh-2/jijnasaai/internal/cost"
	"github.com/Ratheesh-2/jijnasaai/internal/extract"
	"github.com/Ratheesh-2/jijnasaai/internal/llm"
	"github.com/Ratheesh-2/jijnasaai/internal/rag"
	"github.com/Ratheesh-2/jijnasaai/internal/vectorstore"
)

const maxUploadBytes = 32 << 20

type Handler struct {
	store        rag.DocumentStore
	pipeline     *rag.IngestionPipeline
	repo         chat.Repository
	orchestrator *chat.Orchestrator
	accountant   *cost.Accountant
	registry     *llm.Registry
}

func NewHandler(store rag.DocumentStore, pipeline *rag.IngestionPipeline, repo chat.Repository, orchestrator *chat.Orchestrator, accountant *cost.Accountant, registry *llm.Registry) *Handler {
	return &Handler{
		store:        store,
		pipeline:     pipeline,
		repo:         repo,
		orchestrator: orchestrator,
		accountant:   accountant,
		registry:     registry,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Models lists the catalog entries whose provider is configured.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": h.registry.AvailableModels()})
}

// UploadDocument accepts a multipart file, extracts its text synchronously
// so unreadable uploads fail fast, then runs chunking and embedding in the
// background. Poll GET /documents/{id} for the status.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	sourceType := r.FormValue("source_type")
	if sourceType == "" {
		sourceType = strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	text, err := extract.Text(data, sourceType)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "extract text: "+err.Error())
		return
	}

	doc := &rag.Document{
		Filename:   header.Filename,
		SourceType: sourceType,
		Status:     rag.StatusPending,
	}
	if err := h.store.CreateDocument(r.Context(), doc); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := h.pipeline.Ingest(ctx, doc.ID, text); err != nil {
			log.Printf("ingest %s (%s): %v", doc.Filename, doc.ID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, doc)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []rag.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	doc, err := h.store.GetDocument(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument removes the document, its chunks and its vectors. Once it
// returns, retrieval can no longer surface the document's content.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.pipeline.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	ConversationID *uuid.UUID `json:"conversationId"`
	ModelID        string     `json:"modelId"`
	Message        string     `json:"message"`
	UseRAG         *bool      `json:"useRag"`
	Temperature    float32    `json:"temperature"`
}

// Chat streams one turn over SSE. Events: conversation, sources, token,
// usage, done; a terminal failure is an error event. Failures before the
// stream opens are plain JSON errors.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}

	turn := chat.TurnRequest{
		ConversationID: req.ConversationID,
		ModelID:        req.ModelID,
		Message:        req.Message,
		UseRAG:         useRAG,
		Temperature:    req.Temperature,
	}

	sse := newSSEWriter(w)
	for event, err := range h.orchestrator.StreamTurn(r.Context(), turn) {
		if err != nil {
			if !sse.opened() {
				writeDomainError(w, err)
				return
			}
			sse.send("error", map[string]string{"error": err.Error()})
			return
		}
		switch event.Type {
		case chat.TurnConversation:
			sse.send("conversation", event.Conversation)
		case chat.TurnSources:
			sse.send("sources", map[string]any{"sources": event.Sources})
		case chat.TurnToken:
			sse.send("token", map[string]string{"text": event.Text})
		case chat.TurnUsage:
			sse.send("usage", event.Usage)
		case chat.TurnDone:
			sse.send("done", map[string]bool{"done": true})
		}
	}
}

type createConversationRequest struct {
	ModelID      string `json:"modelId"`
	Title        string `json:"title"`
	SystemPrompt string `json:"systemPrompt"`
}

// CreateConversation starts an empty conversation. Chatting without one
// also works; POST /chat/completions creates on demand.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = h.registry.DefaultModel()
	}
	if _, _, err := h.registry.ForModel(modelID); err != nil {
		writeDomainError(w, err)
		return
	}

	conv := &chat.Conversation{
		ModelID:      modelID,
		Title:        req.Title,
		SystemPrompt: req.SystemPrompt,
	}
	if err := h.repo.CreateConversation(r.Context(), conv); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.repo.ListConversations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	conv, err := h.repo.GetConversation(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListMessages returns a conversation's messages in order, citations
// included.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.repo.GetConversation(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	messages, err := h.repo.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.repo.DeleteConversation(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CostSummary reports the all-time totals recomputed from the cost log,
// plus one conversation's totals when conversation_id is given.
func (h *Handler) CostSummary(w http.ResponseWriter, r *http.Request) {
	global, err := h.accountant.Global(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := map[string]any{"global": global}
	if raw := r.URL.Query().Get("conversation_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid conversation_id")
			return
		}
		conv, err := h.accountant.PerConversation(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out["conversation"] = conv
	}
	writeJSON(w, http.StatusOK, out)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rag.ErrDocumentNotFound),
		errors.Is(err, chat.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, llm.ErrUnknownModel),
		errors.Is(err, llm.ErrProviderNotConfigured),
		errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrDailySpendExceeded):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, rag.ErrIngestionInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, vectorstore.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
