// Package slack posts incident milestones to a Slack channel: one message
// when an investigation starts and a threaded reply when its root cause is
// confirmed.
package slack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/sherlog/pkg/incident"
	"github.com/codeready-toolchain/sherlog/pkg/masking"
)

const (
	postTimeout   = 10 * time.Second
	lookupTimeout = 5 * time.Second

	// masking group applied to everything leaving the process
	outboundMaskGroup = "secrets"
)

var _ incident.Notifier = (*Service)(nil)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token   string
	Channel string
	Masking *masking.Service
}

// Service handles Slack notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client  *Client
	masking *masking.Service
	logger  *slog.Logger

	mu      sync.Mutex
	threads map[string]string // incident id -> thread ts
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return NewServiceWithClient(NewClient(cfg.Token, cfg.Channel), cfg.Masking)
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, maskingSvc *masking.Service) *Service {
	return &Service{
		client:  client,
		masking: maskingSvc,
		logger:  slog.Default().With("component", "slack-service"),
		threads: make(map[string]string),
	}
}

// IncidentCreated announces a new investigation.
// Fail-open: errors are logged, never returned.
func (s *Service) IncidentCreated(ctx context.Context, inc *incident.Incident) {
	if s == nil {
		return
	}
	fallback, blocks := BuildIncidentCreatedMessage(inc)
	ts, err := s.client.PostMessage(ctx, s.maskText(fallback), s.mask(blocks), "", postTimeout)
	if err != nil {
		s.logger.Error("Failed to send Slack incident notification", "incident_id", inc.ID, "error", err)
		return
	}
	s.mu.Lock()
	s.threads[inc.ID] = ts
	s.mu.Unlock()
}

// RootCauseConfirmed replies in the incident's thread, or posts top-level
// when the thread cannot be found.
// Fail-open: errors are logged, never returned.
func (s *Service) RootCauseConfirmed(ctx context.Context, inc *incident.Incident, h *incident.Hypothesis) {
	if s == nil {
		return
	}
	threadTS := s.threadFor(ctx, inc.ID)
	fallback, blocks := BuildRootCauseMessage(inc, h)
	if _, err := s.client.PostMessage(ctx, s.maskText(fallback), s.mask(blocks), threadTS, postTimeout); err != nil {
		s.logger.Error("Failed to send Slack root cause notification",
			"incident_id", inc.ID, "hypothesis_id", h.ID, "error", err)
	}
}

func (s *Service) threadFor(ctx context.Context, incidentID string) string {
	s.mu.Lock()
	ts, ok := s.threads[incidentID]
	s.mu.Unlock()
	if ok {
		return ts
	}

	ts, err := s.client.FindIncidentMessage(ctx, incidentID, lookupTimeout)
	if err != nil {
		s.logger.Warn("Failed to find Slack thread for incident", "incident_id", incidentID, "error", err)
		return ""
	}
	if ts != "" {
		s.mu.Lock()
		s.threads[incidentID] = ts
		s.mu.Unlock()
	}
	return ts
}

// mask redacts secrets from section text. Evidence quoted from logs is the
// usual carrier.
func (s *Service) mask(blocks []goslack.Block) []goslack.Block {
	for _, b := range blocks {
		if section, ok := b.(*goslack.SectionBlock); ok && section.Text != nil {
			section.Text.Text = s.maskText(section.Text.Text)
		}
	}
	return blocks
}

func (s *Service) maskText(text string) string {
	if s.masking == nil {
		return text
	}
	return s.masking.MaskWithGroup(text, outboundMaskGroup)
}
