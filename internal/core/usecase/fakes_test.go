package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/core/ports"
)

type fakeAccountRepo struct {
	accounts map[string]*domain.ProviderAccount
	listErr  error
}

func (r *fakeAccountRepo) ListActive(context.Context) ([]domain.ProviderAccount, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.ProviderAccount
	for _, acc := range r.accounts {
		if acc.Active {
			out = append(out, *acc)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id string) (*domain.ProviderAccount, error) {
	acc, ok := r.accounts[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrAccountNotFound, "get account", fmt.Errorf("id %s", id))
	}
	copied := *acc
	return &copied, nil
}

type fakeSyncState struct {
	mu      sync.Mutex
	seen    map[string]bool
	cursors map[string]time.Time
	seenErr error
}

func newFakeSyncState() *fakeSyncState {
	return &fakeSyncState{
		seen:    make(map[string]bool),
		cursors: make(map[string]time.Time),
	}
}

func (s *fakeSyncState) HasSeen(_ context.Context, providerID, externalID string) (bool, error) {
	if s.seenErr != nil {
		return false, s.seenErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[providerID+"/"+externalID], nil
}

func (s *fakeSyncState) markSeen(providerID, externalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[providerID+"/"+externalID] = true
}

func (s *fakeSyncState) GetCursor(_ context.Context, providerID string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursor, ok := s.cursors[providerID]
	if !ok {
		return nil, nil
	}
	return &cursor, nil
}

func (s *fakeSyncState) AdvanceCursor(_ context.Context, providerID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[providerID] = t
	return nil
}

type fakeQueue struct {
	mu         sync.Mutex
	published  []domain.MessageEvent
	publishErr error
}

func (q *fakeQueue) PublishMessageFound(_ context.Context, event domain.MessageEvent) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, event)
	return nil
}

func (q *fakeQueue) SubscribeMessageFound(context.Context, func(context.Context, domain.MessageEvent) error) error {
	return nil
}

type fakeMailProvider struct {
	messages    []domain.Message
	listErr     error
	blobs       map[string][]byte
	blobErr     error
	markedRead  []string
	markReadErr error
}

func (p *fakeMailProvider) ListNewSince(_ context.Context, _ time.Time) ([]domain.Message, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.messages, nil
}

func (p *fakeMailProvider) GetMessage(_ context.Context, externalID string) (*domain.Message, error) {
	for i := range p.messages {
		if p.messages[i].ExternalID == externalID {
			return &p.messages[i], nil
		}
	}
	return nil, domain.WrapError(domain.ErrMessageNotFound, "get message", fmt.Errorf("id %s", externalID))
}

func (p *fakeMailProvider) GetAttachmentBytes(_ context.Context, _, attachmentExternalID string) ([]byte, error) {
	if p.blobErr != nil {
		return nil, p.blobErr
	}
	data, ok := p.blobs[attachmentExternalID]
	if !ok {
		return nil, fmt.Errorf("no blob for %s", attachmentExternalID)
	}
	return data, nil
}

func (p *fakeMailProvider) MarkRead(_ context.Context, externalID string) error {
	if p.markReadErr != nil {
		return p.markReadErr
	}
	p.markedRead = append(p.markedRead, externalID)
	return nil
}

type fakeRegistry struct {
	provider ports.MailProvider
	err      error
}

func (r *fakeRegistry) ProviderFor(domain.ProviderAccount) (ports.MailProvider, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.provider, nil
}

type fakeMessageRepo struct {
	mu      sync.Mutex
	created []*domain.Message
	blobs   []map[string][]byte
	err     error
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.Message, blobs map[string][]byte) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, msg)
	r.blobs = append(r.blobs, blobs)
	return nil
}

func (r *fakeMessageRepo) GetByID(context.Context, string) (*domain.Message, error) {
	return nil, domain.ErrMessageNotFound
}

func (r *fakeMessageRepo) ListByUser(context.Context, string, int) ([]domain.Message, error) {
	return nil, nil
}

type fakeClassifier struct {
	classifyResult domain.ClassificationResult
	classified     [][]byte

	extractResults map[string]domain.ExtractionResult
	extractErr     error
	extractCalls   []string // processor ids in call order
}

func (c *fakeClassifier) Classify(_ context.Context, content []byte, _ string) domain.ClassificationResult {
	c.classified = append(c.classified, content)
	return c.classifyResult
}

func (c *fakeClassifier) Extract(_ context.Context, _ []byte, _ string, processorID string) (domain.ExtractionResult, error) {
	c.extractCalls = append(c.extractCalls, processorID)
	if c.extractErr != nil {
		return domain.ExtractionResult{}, c.extractErr
	}
	return c.extractResults[processorID], nil
}

type fakeAttachmentRepo struct {
	extractable []domain.ExtractableAttachment
	listErr     error
	listCutoff  time.Time
	blobs       map[string][]byte
	blobErr     error

	markedIDs []string
	markedAt  time.Time
	markErr   error
}

func (r *fakeAttachmentRepo) ListExtractable(_ context.Context, cutoff time.Time) ([]domain.ExtractableAttachment, error) {
	r.listCutoff = cutoff
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.extractable, nil
}

func (r *fakeAttachmentRepo) GetBlob(_ context.Context, attachmentID string) ([]byte, error) {
	if r.blobErr != nil {
		return nil, r.blobErr
	}
	data, ok := r.blobs[attachmentID]
	if !ok {
		return nil, fmt.Errorf("no blob for %s", attachmentID)
	}
	return data, nil
}

func (r *fakeAttachmentRepo) MarkExtractedBatch(_ context.Context, ids []string, extractedAt time.Time) error {
	if r.markErr != nil {
		return r.markErr
	}
	r.markedIDs = append(r.markedIDs, ids...)
	r.markedAt = extractedAt
	return nil
}
