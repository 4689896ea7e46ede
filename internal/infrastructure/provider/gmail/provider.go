package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/infrastructure/resilience"
)

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// Provider is a thin wrapper over the Gmail REST API that normalizes
// vendor message shapes into the canonical domain types. One instance
// per account; it owns its token, HTTP client, and rate limiter.
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
		// Gmail per-user quota headroom; bursts cover list+get fan-out.
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		executor: executor,
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
	query.Set("q", fmt.Sprintf("after:%d", since.Unix()))
	query.Set("maxResults", "100")

	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := p.getJSON(ctx, "/messages?"+query.Encode(), &list, "gmail.list"); err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := p.GetMessage(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch message %s: %w", ref.ID, err)
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (p *Provider) GetMessage(ctx context.Context, externalID string) (*domain.Message, error) {
	var raw gmailMessage
	if err := p.getJSON(ctx, "/messages/"+externalID+"?format=full", &raw, "gmail.get"); err != nil {
		return nil, err
	}
	msg := normalizeMessage(raw)
	return &msg, nil
}

func (p *Provider) GetAttachmentBytes(ctx context.Context, messageExternalID, attachmentExternalID string) ([]byte, error) {
	var body struct {
		Data string `json:"data"`
	}
	path := fmt.Sprintf("/messages/%s/attachments/%s", messageExternalID, attachmentExternalID)
	if err := p.getJSON(ctx, path, &body, "gmail.attachment"); err != nil {
		return nil, err
	}
	data, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment data: %w", err)
	}
	return data, nil
}

func (p *Provider) MarkRead(ctx context.Context, externalID string) error {
	payload := map[string]any{"removeLabelIds": []string{"UNREAD"}}
	return p.postJSON(ctx, "/messages/"+externalID+"/modify", payload, nil, "gmail.modify")
}

// gmailMessage is the subset of the vendor wire shape this system reads.
type gmailMessage struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	LabelIDs     []string `json:"labelIds"`
	InternalDate string   `json:"internalDate"`
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
		Parts []gmailPart `json:"parts"`
		Body  struct {
			Data string `json:"data"`
		} `json:"body"`
		MimeType string `json:"mimeType"`
	} `json:"payload"`
}

type gmailPart struct {
	PartID   string `json:"partId"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Body     struct {
		AttachmentID string `json:"attachmentId"`
		Size         int64  `json:"size"`
		Data         string `json:"data"`
	} `json:"body"`
	Parts []gmailPart `json:"parts"`
}

func normalizeMessage(raw gmailMessage) domain.Message {
	msg := domain.Message{
		ExternalID: raw.ID,
		ThreadID:   raw.ThreadID,
		Labels:     raw.LabelIDs,
		IsRead:     true,
	}
	for _, label := range raw.LabelIDs {
		if label == "UNREAD" {
			msg.IsRead = false
		}
		if label == "IMPORTANT" {
			msg.IsImportant = true
		}
	}

	for _, header := range raw.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "from":
			msg.Sender = header.Value
		case "to":
			msg.Recipients = splitAddressList(header.Value)
		case "subject":
			msg.Subject = header.Value
		}
	}

	if ms, err := strconv.ParseInt(raw.InternalDate, 10, 64); err == nil && ms > 0 {
		t := time.UnixMilli(ms).UTC()
		msg.ReceivedAt = &t
	}

	collectParts(raw.Payload.Parts, &msg)
	if msg.Body == "" && raw.Payload.Body.Data != "" && strings.HasPrefix(raw.Payload.MimeType, "text/plain") {
		msg.Body = decodeBody(raw.Payload.Body.Data)
	}
	return msg
}

func collectParts(parts []gmailPart, msg *domain.Message) {
	for _, part := range parts {
		switch {
		case part.Filename != "" && part.Body.AttachmentID != "":
			msg.Attachments = append(msg.Attachments, domain.AttachmentRef{
				ExternalID:  part.Body.AttachmentID,
				Filename:    part.Filename,
				ContentType: part.MimeType,
				Size:        part.Body.Size,
			})
		case part.MimeType == "text/plain" && msg.Body == "":
			msg.Body = decodeBody(part.Body.Data)
		case part.MimeType == "text/html" && msg.HTMLBody == "":
			msg.HTMLBody = decodeBody(part.Body.Data)
		}
		collectParts(part.Parts, msg)
	}
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return ""
	}
	return string(decoded)
}

func splitAddressList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (p *Provider) getJSON(ctx context.Context, path string, out any, operation string) error {
	return p.do(ctx, http.MethodGet, path, nil, out, operation)
}

func (p *Provider) postJSON(ctx context.Context, path string, payload, out any, operation string) error {
	return p.do(ctx, http.MethodPost, path, payload, out, operation)
}

func (p *Provider) do(ctx context.Context, method, path string, payload, out any, operation string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit wait: %w", operation, err)
	}

	call := func(callCtx context.Context) error {
		return doHTTP(callCtx, p.httpClient, method, p.baseURL+path, p.accessToken, payload, out, operation)
	}
	if p.executor != nil {
		return p.executor.Execute(ctx, operation, call, classifyHTTPError)
	}
	return call(ctx)
}

func doHTTP(ctx context.Context, client *http.Client, method, fullURL, token string, payload, out any, operation string) error {
	var body *strings.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = strings.NewReader(string(raw))
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
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
