package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

type fakeRuleService struct {
	rules     map[string]domain.TriggerRule
	createErr error
}

func (s *fakeRuleService) Create(_ context.Context, rule *domain.TriggerRule) error {
	if s.createErr != nil {
		return s.createErr
	}
	rule.ID = "rule-1"
	s.rules[rule.ID] = *rule
	return nil
}

func (s *fakeRuleService) List(_ context.Context, userID string) ([]domain.TriggerRule, error) {
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list trigger rules", fmt.Errorf("user id is required"))
	}
	var out []domain.TriggerRule
	for _, rule := range s.rules {
		if rule.UserID == userID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (s *fakeRuleService) Update(_ context.Context, rule *domain.TriggerRule) error {
	if _, ok := s.rules[rule.ID]; !ok {
		return domain.WrapError(domain.ErrRuleNotFound, "update trigger rule", fmt.Errorf("id %s", rule.ID))
	}
	s.rules[rule.ID] = *rule
	return nil
}

func (s *fakeRuleService) Delete(_ context.Context, _, ruleID string) error {
	if _, ok := s.rules[ruleID]; !ok {
		return domain.WrapError(domain.ErrRuleNotFound, "delete trigger rule", fmt.Errorf("id %s", ruleID))
	}
	delete(s.rules, ruleID)
	return nil
}

type fakeMessageReader struct {
	messages map[string]*domain.Message
}

func (r *fakeMessageReader) Create(context.Context, *domain.Message, map[string][]byte) error {
	return nil
}

func (r *fakeMessageReader) GetByID(_ context.Context, id string) (*domain.Message, error) {
	msg, ok := r.messages[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrMessageNotFound, "get message", fmt.Errorf("id %s", id))
	}
	return msg, nil
}

func (r *fakeMessageReader) ListByUser(_ context.Context, userID string, _ int) ([]domain.Message, error) {
	var out []domain.Message
	for _, msg := range r.messages {
		if msg.UserID == userID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func newTestRouter() (http.Handler, *fakeRuleService, *fakeMessageReader) {
	rules := &fakeRuleService{rules: make(map[string]domain.TriggerRule)}
	messages := &fakeMessageReader{messages: make(map[string]*domain.Message)}
	return NewRouter(rules, messages).Handler(), rules, messages
}

func TestHealthz(t *testing.T) {
	handler, _, _ := newTestRouter()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateTrigger(t *testing.T) {
	handler, store, _ := newTestRouter()

	body := `{"user_id":"user-1","kind":"subject_contains","condition":"invoice","action":"log_message","active":true}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/triggers", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.TriggerRule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected assigned rule id in response")
	}
	if _, ok := store.rules[created.ID]; !ok {
		t.Fatal("rule not stored")
	}
}

func TestCreateTriggerInvalidJSON(t *testing.T) {
	handler, _, _ := newTestRouter()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/triggers", strings.NewReader("{")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateTriggerValidationErrorMapsTo400(t *testing.T) {
	handler, store, _ := newTestRouter()
	store.createErr = domain.WrapError(domain.ErrInvalidInput, "validate rule", fmt.Errorf("unknown trigger kind"))

	body := `{"user_id":"user-1","kind":"when_raining","action":"log_message"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/triggers", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListTriggersReturnsEmptyArray(t *testing.T) {
	handler, _, _ := newTestRouter()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/triggers?user_id=user-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("expected empty array, got %s", got)
	}
}

func TestDeleteTrigger(t *testing.T) {
	handler, store, _ := newTestRouter()
	store.rules["rule-1"] = domain.TriggerRule{ID: "rule-1", UserID: "user-1"}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/triggers/rule-1?user_id=user-1", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/triggers/rule-1?user_id=user-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing rule, got %d", rec.Code)
	}
}

func TestGetMessageByIDNotFound(t *testing.T) {
	handler, _, _ := newTestRouter()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/messages/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListMessagesRequiresUser(t *testing.T) {
	handler, _, _ := newTestRouter()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/messages", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListMessages(t *testing.T) {
	handler, _, messages := newTestRouter()
	messages.messages["msg-1"] = &domain.Message{ID: "msg-1", UserID: "user-1", Subject: "Invoice"}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/messages?user_id=user-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out []domain.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 1 || out[0].ID != "msg-1" {
		t.Fatalf("unexpected payload: %+v", out)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	handler, _, _ := newTestRouter()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id header")
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}
