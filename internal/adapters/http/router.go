package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/core/ports"
)

type Router struct {
	rules    ports.RuleService
	messages ports.MessageRepository
}

func NewRouter(rules ports.RuleService, messages ports.MessageRepository) *Router {
	return &Router{
		rules:    rules,
		messages: messages,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/triggers", rt.triggersCollection)
	mux.HandleFunc("/v1/triggers/", rt.triggerByID)
	mux.HandleFunc("/v1/messages", rt.listMessages)
	mux.HandleFunc("/v1/messages/", rt.getMessageByID)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) triggersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.createTrigger(w, r)
	case http.MethodGet:
		rt.listTriggers(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) createTrigger(w http.ResponseWriter, r *http.Request) {
	var rule domain.TriggerRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := rt.rules.Create(r.Context(), &rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (rt *Router) listTriggers(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	rules, err := rt.rules.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rules == nil {
		rules = []domain.TriggerRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (rt *Router) triggerByID(w http.ResponseWriter, r *http.Request) {
	ruleID := strings.TrimPrefix(r.URL.Path, "/v1/triggers/")
	if ruleID == "" || strings.Contains(ruleID, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rule id is required"})
		return
	}

	switch r.Method {
	case http.MethodPatch, http.MethodPut:
		rt.updateTrigger(w, r, ruleID)
	case http.MethodDelete:
		rt.deleteTrigger(w, r, ruleID)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) updateTrigger(w http.ResponseWriter, r *http.Request, ruleID string) {
	var rule domain.TriggerRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	rule.ID = ruleID

	if err := rt.rules.Update(r.Context(), &rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (rt *Router) deleteTrigger(w http.ResponseWriter, r *http.Request, ruleID string) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if err := rt.rules.Delete(r.Context(), userID, ruleID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	messages, err := rt.messages.ListByUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (rt *Router) getMessageByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/messages/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message id is required"})
		return
	}

	msg, err := rt.messages.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
