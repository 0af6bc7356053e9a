package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fare/internal/domain"
)

type recordingAuditRepo struct {
	mu     sync.Mutex
	quotes []*domain.QuoteAudit
}

func (r *recordingAuditRepo) RecordQuote(ctx context.Context, a *domain.QuoteAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes = append(r.quotes, a)
	return nil
}

func (r *recordingAuditRepo) RecordOverrideEvent(ctx context.Context, a *domain.OverrideAudit) error {
	return nil
}

func (r *recordingAuditRepo) BaselineStats(ctx context.Context, window time.Duration) (*domain.BaselineStats, error) {
	return nil, nil
}

func (r *recordingAuditRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.quotes)
}

func TestAsyncAuditor_FlushesOnClose(t *testing.T) {
	t.Parallel()

	repo := &recordingAuditRepo{}
	auditor := NewAsyncAuditor(repo)
	auditor.Start()

	for i := 0; i < 10; i++ {
		auditor.Record(&domain.QuoteAudit{QuoteID: "q"})
	}
	auditor.Close()

	assert.Equal(t, 10, repo.count())
}

func TestAsyncAuditor_AssignsID(t *testing.T) {
	t.Parallel()

	repo := &recordingAuditRepo{}
	auditor := NewAsyncAuditor(repo)
	auditor.Start()

	auditor.Record(&domain.QuoteAudit{QuoteID: "q-1"})
	auditor.Close()

	require.Len(t, repo.quotes, 1)
	assert.NotEmpty(t, repo.quotes[0].ID)
}
