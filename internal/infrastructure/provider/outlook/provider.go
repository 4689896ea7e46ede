package outlook

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/infrastructure/resilience"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0/me"

// Provider wraps the Microsoft Graph mail API and normalizes its message
// shapes into the canonical domain types. One instance per account.
type Provider struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	executor    *resilience.Executor
}

func New(accessToken string, executor *resilience.Executor) *Provider {
	return &Provider{
		baseURL:     defaultBaseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(10), 20),
		executor:    executor,
	}
}

// NewWithBaseURL is used by tests to point the adapter at a stub server.
func NewWithBaseURL(baseURL, accessToken string, executor *resilience.Executor) *Provider {
	p := New(accessToken, executor)
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) ListNewSince(ctx context.Context, since time.Time) ([]domain.Message, error) {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	query.Set("$orderby", "receivedDateTime asc")
	query.Set("$top", "100")
	query.Set("$expand", "attachments($select=id,name,contentType,size,isInline)")

	var list struct {
		Value []graphMessage `json:"value"`
	}
	if err := p.getJSON(ctx, "/messages?"+query.Encode(), &list, "outlook.list"); err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(list.Value))
	for _, raw := range list.Value {
		out = append(out, normalizeMessage(raw))
	}
	return out, nil
}

func (p *Provider) GetMessage(ctx context.Context, externalID string) (*domain.Message, error) {
	var raw graphMessage
	path := "/messages/" + externalID + "?$expand=attachments($select=id,name,contentType,size,isInline)"
	if err := p.getJSON(ctx, path, &raw, "outlook.get"); err != nil {
		return nil, err
	}
	msg := normalizeMessage(raw)
	return &msg, nil
}

func (p *Provider) GetAttachmentBytes(ctx context.Context, messageExternalID, attachmentExternalID string) ([]byte, error) {
	var att struct {
		ContentBytes string `json:"contentBytes"`
	}
	path := fmt.Sprintf("/messages/%s/attachments/%s", messageExternalID, attachmentExternalID)
	if err := p.getJSON(ctx, path, &att, "outlook.attachment"); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		return nil, fmt.Errorf("decode attachment content: %w", err)
	}
	return data, nil
}

func (p *Provider) MarkRead(ctx context.Context, externalID string) error {
	payload := map[string]any{"isRead": true}
	return p.patchJSON(ctx, "/messages/"+externalID, payload, "outlook.patch")
}

type graphMessage struct {
	ID               string `json:"id"`
	ConversationID   string `json:"conversationId"`
	Subject          string `json:"subject"`
	IsRead           bool   `json:"isRead"`
	Importance       string `json:"importance"`
	ReceivedDateTime string `json:"receivedDateTime"`
	From             struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ToRecipients []struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"toRecipients"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	Categories  []string `json:"categories"`
	Attachments []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
		IsInline    bool   `json:"isInline"`
	} `json:"attachments"`
}

func normalizeMessage(raw graphMessage) domain.Message {
	msg := domain.Message{
		ExternalID:  raw.ID,
		ThreadID:    raw.ConversationID,
		Subject:     raw.Subject,
		Sender:      raw.From.EmailAddress.Address,
		IsRead:      raw.IsRead,
		IsImportant: strings.EqualFold(raw.Importance, "high"),
		Labels:      raw.Categories,
	}

	for _, rcpt := range raw.ToRecipients {
		if rcpt.EmailAddress.Address != "" {
			msg.Recipients = append(msg.Recipients, rcpt.EmailAddress.Address)
		}
	}

	if strings.EqualFold(raw.Body.ContentType, "html") {
		msg.HTMLBody = raw.Body.Content
	} else {
		msg.Body = raw.Body.Content
	}

	if t, err := time.Parse(time.RFC3339, raw.ReceivedDateTime); err == nil {
		received := t.UTC()
		msg.ReceivedAt = &received
	}

	for _, att := range raw.Attachments {
		msg.Attachments = append(msg.Attachments, domain.AttachmentRef{
			ExternalID:  att.ID,
			Filename:    att.Name,
			ContentType: att.ContentType,
			Size:        att.Size,
			Inline:      att.IsInline,
		})
	}
	return msg
}

func (p *Provider) getJSON(ctx context.Context, path string, out any, operation string) error {
	return p.do(ctx, http.MethodGet, path, nil, out, operation)
}

func (p *Provider) patchJSON(ctx context.Context, path string, payload any, operation string) error {
	return p.do(ctx, http.MethodPatch, path, payload, nil, operation)
}

func (p *Provider) do(ctx context.Context, method, path string, payload, out any, operation string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit wait: %w", operation, err)
	}

	call := func(callCtx context.Context) error {
		return p.doHTTP(callCtx, method, path, payload, out, operation)
	}
	if p.executor != nil {
		return p.executor.Execute(ctx, operation, call, classifyHTTPError)
	}
	return call(ctx)
}

func (p *Provider) doHTTP(ctx context.Context, method, path string, payload, out any, operation string) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domain.WrapError(domain.ErrTemporary, operation, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d", operation, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func classifyHTTPError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
