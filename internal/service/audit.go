package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"fare/internal/domain"
	"fare/internal/repository"
)

// AuditSink receives quote audit records. Delivery is at-most-once: a full
// queue drops the event rather than blocking the quoting path, and a sink
// failure is never surfaced to the quote caller.
type AuditSink interface {
	Record(a *domain.QuoteAudit)
}

const auditQueueSize = 1024

// AsyncAuditor drains quote audit events from a buffered channel into the
// audit repository on a single background goroutine.
type AsyncAuditor struct {
	repo    repository.AuditRepository
	queue   chan *domain.QuoteAudit
	done    chan struct{}
	timeout time.Duration
}

// NewAsyncAuditor creates an auditor; call Start before recording and
// Close on shutdown.
func NewAsyncAuditor(repo repository.AuditRepository) *AsyncAuditor {
	return &AsyncAuditor{
		repo:    repo,
		queue:   make(chan *domain.QuoteAudit, auditQueueSize),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
}

// Start launches the drain goroutine.
func (a *AsyncAuditor) Start() {
	go a.drain()
}

// Record enqueues an audit event without blocking. Events are dropped when
// the queue is full.
func (a *AsyncAuditor) Record(event *domain.QuoteAudit) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	select {
	case a.queue <- event:
	default:
		log.Printf("[AUDIT] queue full, dropping event for quote %s", event.QuoteID)
	}
}

// Close stops accepting events and flushes what is already queued.
func (a *AsyncAuditor) Close() {
	close(a.queue)
	<-a.done
}

func (a *AsyncAuditor) drain() {
	defer close(a.done)
	for event := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.repo.RecordQuote(ctx, event); err != nil {
			log.Printf("[AUDIT] failed to persist quote audit %s: %v", event.QuoteID, err)
		}
		cancel()
	}
}
