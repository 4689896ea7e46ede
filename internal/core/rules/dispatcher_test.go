package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

type fakeNotifier struct {
	sent []string
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, recipient, _, _ string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, recipient)
	return nil
}

type fakeWebhook struct {
	urls []string
	err  error
}

func (w *fakeWebhook) Call(_ context.Context, url string, _ any) error {
	if w.err != nil {
		return w.err
	}
	w.urls = append(w.urls, url)
	return nil
}

type fakeProvider struct {
	marked []string
	err    error
}

func (p *fakeProvider) ListNewSince(context.Context, time.Time) ([]domain.Message, error) {
	return nil, nil
}
func (p *fakeProvider) GetMessage(context.Context, string) (*domain.Message, error) {
	return nil, nil
}
func (p *fakeProvider) GetAttachmentBytes(context.Context, string, string) ([]byte, error) {
	return nil, nil
}
func (p *fakeProvider) MarkRead(_ context.Context, externalID string) error {
	if p.err != nil {
		return p.err
	}
	p.marked = append(p.marked, externalID)
	return nil
}

func TestDispatchAllIsolatesFailures(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("smtp rejected")}
	webhook := &fakeWebhook{}
	d := NewDispatcher(notifier, webhook, nil)

	matched := []domain.TriggerRule{
		{ID: "r1", Action: domain.ActionSendNotification, Metadata: map[string]string{"recipient": "ops@example.com"}},
		{ID: "r2", Action: domain.ActionWebhookCall, Metadata: map[string]string{"url": "https://hooks.example.com/x"}},
	}

	results := d.DispatchAll(context.Background(), matched, sampleMessage(), &fakeProvider{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Err == nil {
		t.Fatal("expected notification failure to surface in result")
	}
	if results[1].Err != nil {
		t.Fatalf("webhook dispatch should not be affected by earlier failure: %v", results[1].Err)
	}
	if len(webhook.urls) != 1 {
		t.Fatalf("expected webhook called once, got %d", len(webhook.urls))
	}
}

func TestDispatchMarkAsRead(t *testing.T) {
	d := NewDispatcher(&fakeNotifier{}, &fakeWebhook{}, nil)
	provider := &fakeProvider{}
	msg := sampleMessage()

	results := d.DispatchAll(context.Background(),
		[]domain.TriggerRule{{ID: "r1", Action: domain.ActionMarkAsRead}}, msg, provider)
	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	if len(provider.marked) != 1 || provider.marked[0] != msg.ExternalID {
		t.Fatalf("expected mark read on %s, got %v", msg.ExternalID, provider.marked)
	}

	results = d.DispatchAll(context.Background(),
		[]domain.TriggerRule{{ID: "r1", Action: domain.ActionMarkAsRead}}, msg, nil)
	if results[0].Err == nil {
		t.Fatal("expected error when no provider adapter is available")
	}
}

func TestDispatchRequiresMetadata(t *testing.T) {
	d := NewDispatcher(&fakeNotifier{}, &fakeWebhook{}, nil)

	cases := []struct {
		name   string
		action domain.ActionKind
	}{
		{"notification without recipient", domain.ActionSendNotification},
		{"webhook without url", domain.ActionWebhookCall},
		{"forward without target", domain.ActionForwardEmail},
		{"script without path", domain.ActionCustomScript},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results := d.DispatchAll(context.Background(),
				[]domain.TriggerRule{{ID: "r1", Action: tc.action}}, sampleMessage(), &fakeProvider{})
			if !domain.IsKind(results[0].Err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", results[0].Err)
			}
		})
	}
}

func TestDispatchUnknownActionIsUnsupported(t *testing.T) {
	d := NewDispatcher(&fakeNotifier{}, &fakeWebhook{}, nil)

	results := d.DispatchAll(context.Background(),
		[]domain.TriggerRule{{ID: "r1", Action: domain.ActionKind("play_sound")}}, sampleMessage(), &fakeProvider{})
	if !domain.IsKind(results[0].Err, domain.ErrUnsupportedAction) {
		t.Fatalf("expected ErrUnsupportedAction, got %v", results[0].Err)
	}
}
