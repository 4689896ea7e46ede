package docai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/infrastructure/resilience"
)

// Client talks to the document classification/extraction service. The
// service is an opaque collaborator: documents go in as raw bytes, a
// type label plus entities come back. A failed classification becomes
// the error-sentinel result, which is a terminal outcome.
type Client struct {
	baseURL           string
	classifyProcessor string
	httpClient        *http.Client
	executor          *resilience.Executor
}

func New(baseURL, classifyProcessor string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		classifyProcessor: classifyProcessor,
		httpClient:        &http.Client{Timeout: 120 * time.Second},
		executor:          executor,
	}
}

type processRequest struct {
	ProcessorID string `json:"processor_id"`
	MimeType    string `json:"mime_type"`
	Content     string `json:"content"` // base64
}

type processResponse struct {
	Type       string            `json:"type"`
	Confidence float64           `json:"confidence"`
	PageCount  int               `json:"page_count"`
	Entities   []domain.Entity   `json:"entities"`
	Extracted  map[string]string `json:"extracted_data"`
	Error      string            `json:"error"`
}

func (c *Client) Classify(ctx context.Context, content []byte, mimeType string) domain.ClassificationResult {
	resp, err := c.process(ctx, c.classifyProcessor, content, mimeType, "docai.classify")
	if err != nil {
		return domain.ErrorClassification(err)
	}
	result := domain.ClassificationResult{
		Type:       resp.Type,
		Confidence: resp.Confidence,
		PageCount:  resp.PageCount,
		Entities:   resp.Entities,
		Error:      resp.Error,
	}
	if result.Type == "" {
		result.Type = "unknown"
	}
	return result
}

func (c *Client) Extract(ctx context.Context, content []byte, mimeType, processorID string) (domain.ExtractionResult, error) {
	resp, err := c.process(ctx, processorID, content, mimeType, "docai.extract")
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	return domain.ExtractionResult{
		Entities: resp.Extracted,
		Error:    resp.Error,
	}, nil
}

func (c *Client) process(ctx context.Context, processorID string, content []byte, mimeType, operation string) (*processResponse, error) {
	request := processRequest{
		ProcessorID: processorID,
		MimeType:    mimeType,
		Content:     base64.StdEncoding.EncodeToString(content),
	}

	var response processResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1/process", request, &response, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyDocAIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domain.WrapError(domain.ErrTemporary, operation, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func classifyDocAIError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
