package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

func NewRouter(h *Handler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/models", h.Models).Methods(http.MethodGet)

	r.HandleFunc("/chat/completions", h.Chat).Methods(http.MethodPost)

	r.HandleFunc("/documents/upload", h.UploadDocument).Methods(http.MethodPost)
	r.HandleFunc("/documents", h.ListDocuments).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}", h.GetDocument).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}", h.DeleteDocument).Methods(http.MethodDelete)

	r.HandleFunc("/conversations", h.CreateConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", h.ListConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", h.GetConversation).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", h.DeleteConversation).Methods(http.MethodDelete)
	r.HandleFunc("/conversations/{id}/messages", h.ListMessages).Methods(http.MethodGet)

	r.HandleFunc("/costs/summary", h.CostSummary).Methods(http.MethodGet)

	return r
}
