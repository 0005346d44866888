package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gastos/internal/dataservice"
	"gastos/internal/mail"
)

// EmailProcessorConfig holds configuration for the email outbox processor
type EmailProcessorConfig struct {
	// PollInterval is how often to check for pending emails (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of emails sent per poll cycle (default: 20)
	BatchSize int

	// MaxRetries is the number of attempts after which an email is given up (default: 5)
	MaxRetries int

	// OnResult, if set, is called after every delivery attempt.
	OnResult func(sent bool)
}

func DefaultEmailProcessorConfig() EmailProcessorConfig {
	return EmailProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    20,
		MaxRetries:   5,
	}
}

// EmailProcessor retries outbox emails until they are sent or run out of attempts.
type EmailProcessor struct {
	outbox dataservice.EmailOutbox
	sender mail.Sender
	config EmailProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewEmailProcessor(outbox dataservice.EmailOutbox, sender mail.Sender, config EmailProcessorConfig) *EmailProcessor {
	return &EmailProcessor{outbox: outbox, sender: sender, config: config}
}

// Start begins the processing loop. Returns an error if already running.
func (p *EmailProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("email processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Email processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries)
	return nil
}

// Stop gracefully stops the processor and waits for the current batch.
func (p *EmailProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Email processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Email processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *EmailProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *EmailProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch sends one batch of pending emails and reports how many were sent.
func (p *EmailProcessor) ProcessBatch(ctx context.Context) int {
	emails, err := p.outbox.PendingEmails(ctx, p.config.BatchSize, p.config.MaxRetries)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load pending emails", "error", err)
		return 0
	}
	if len(emails) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing email batch", "count", len(emails))

	sent := 0
	for _, e := range emails {
		if ctx.Err() != nil {
			break
		}
		ok := deliver(ctx, p.outbox, p.sender, e)
		if p.config.OnResult != nil {
			p.config.OnResult(ok)
		}
		if ok {
			sent++
			continue
		}
		if e.Attempts+1 >= p.config.MaxRetries {
			slog.ErrorContext(ctx, "Email failed permanently after max retries",
				"email_id", e.ID, "to", e.To, "attempts", e.Attempts+1)
		}
	}
	return sent
}
