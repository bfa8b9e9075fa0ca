// Package incident holds the incident record model and the state machine
// that mutates it.
package incident

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Labels of the timeline entries the service writes on its own.
const (
	LabelInvestigationStarted = "Investigation started"
	LabelRootCauseConfirmed   = "Root cause confirmed"
)

// CreateIncidentInput carries the fields of a new incident.
type CreateIncidentInput struct {
	Name         string
	Severity     Severity
	Services     []string
	Investigator string // falls back to the service default when empty
	Description  string
}

// TimelineEventInput describes an event to append. Timestamp is optional
// RFC 3339; the current time is used when empty.
type TimelineEventInput struct {
	Label     string
	Source    Source
	Detail    string
	Timestamp string
}

// ProposeHypothesisInput describes a new hypothesis.
type ProposeHypothesisInput struct {
	Title      string
	ProposedBy Proposer   // agent when empty
	Evidence   []string   // initial supporting evidence
	Confidence Confidence // medium when empty
}

// UpdateHypothesisInput lists the optional changes to a hypothesis.
// Nil fields leave the hypothesis untouched.
type UpdateHypothesisInput struct {
	SupportingEvidence []string
	CounterEvidence    []string
	Confidence         *Confidence
}

// FindingInput describes a finding to append.
type FindingInput struct {
	Type        FindingType
	Description string
	Service     string
	Value       string
	Timestamp   string
}

// Service applies typed mutations to incident records. Every mutation loads
// the record, changes it in memory, saves the whole document and returns the
// saved copy. Repeated calls are not deduplicated.
type Service struct {
	store        Store
	notifier     Notifier
	investigator string
	now          func() time.Time
}

// NewService creates a Service. notifier may be nil.
func NewService(store Store, notifier Notifier, defaultInvestigator string) *Service {
	return &Service{
		store:        store,
		notifier:     notifier,
		investigator: defaultInvestigator,
		now:          time.Now,
	}
}

func (s *Service) timestamp() string {
	return FormatTime(s.now())
}

// CreateIncident starts a new investigation.
func (s *Service) CreateIncident(ctx context.Context, in CreateIncidentInput) (*Incident, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewValidationError("name", "required")
	}
	if !in.Severity.IsValid() {
		return nil, NewValidationError("severity", fmt.Sprintf("must be one of critical, high, medium, low (got %q)", in.Severity))
	}
	investigator := in.Investigator
	if investigator == "" {
		investigator = s.investigator
	}

	now := s.now()
	ts := FormatTime(now)

	services := make([]string, 0, len(in.Services))
	for _, svc := range in.Services {
		if svc = strings.TrimSpace(svc); svc != "" {
			services = append(services, svc)
		}
	}

	inc := &Incident{
		ID:   NewID(now),
		Name: name,
		Metadata: Metadata{
			CreatedAt:        ts,
			Status:           StatusInvestigating,
			Severity:         in.Severity,
			AffectedServices: services,
			Investigator:     investigator,
		},
		Summary: Summary{Text: in.Description, UpdatedAt: ts},
		Timeline: []TimelineEvent{{
			Timestamp: ts,
			Label:     LabelInvestigationStarted,
			Source:    SourceUser,
			Detail:    in.Description,
		}},
	}
	inc.normalize()

	if err := s.store.Save(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to save incident %s: %w", inc.ID, err)
	}

	slog.Info("Incident created", "incident_id", inc.ID, "severity", inc.Metadata.Severity)
	if s.notifier != nil {
		s.notifier.IncidentCreated(ctx, inc)
	}
	return inc, nil
}

// AddTimelineEvent appends an event and keeps the timeline ordered by time.
func (s *Service) AddTimelineEvent(ctx context.Context, id string, in TimelineEventInput) (*Incident, error) {
	if strings.TrimSpace(in.Label) == "" {
		return nil, NewValidationError("label", "required")
	}
	if !in.Source.IsValid() {
		return nil, NewValidationError("source", fmt.Sprintf("must be one of logs, user, agent, metrics (got %q)", in.Source))
	}
	ts, err := s.resolveTimestamp(in.Timestamp)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, func(inc *Incident) error {
		inc.Timeline = append(inc.Timeline, TimelineEvent{
			Timestamp: ts,
			Label:     in.Label,
			Source:    in.Source,
			Detail:    in.Detail,
		})
		sortTimeline(inc.Timeline)
		return nil
	})
}

// ProposeHypothesis appends a hypothesis in the investigating state. Ids are
// hyp_<n> where n is the hypothesis's 1-based position at proposal time.
func (s *Service) ProposeHypothesis(ctx context.Context, id string, in ProposeHypothesisInput) (*Incident, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, NewValidationError("title", "required")
	}
	proposer := in.ProposedBy
	if proposer == "" {
		proposer = ProposerAgent
	}
	if !proposer.IsValid() {
		return nil, NewValidationError("proposed_by", fmt.Sprintf("must be agent or user (got %q)", proposer))
	}
	confidence := in.Confidence
	if confidence == "" {
		confidence = ConfidenceMedium
	}
	if !confidence.IsValid() {
		return nil, NewValidationError("confidence", fmt.Sprintf("must be high, medium or low (got %q)", confidence))
	}

	return s.mutate(ctx, id, func(inc *Incident) error {
		// Ids are order-derived and never renumbered. Two writers proposing
		// against the same stale record would collide.
		inc.Hypotheses = append(inc.Hypotheses, Hypothesis{
			ID:                 fmt.Sprintf("hyp_%d", len(inc.Hypotheses)+1),
			Title:              in.Title,
			ProposedAt:         s.timestamp(),
			ProposedBy:         proposer,
			Status:             HypothesisInvestigating,
			Confidence:         confidence,
			SupportingEvidence: append([]string{}, in.Evidence...),
			CounterEvidence:    []string{},
		})
		return nil
	})
}

// UpdateHypothesis appends evidence and optionally replaces the confidence.
// With no changes it still saves the record unchanged.
func (s *Service) UpdateHypothesis(ctx context.Context, id, hypothesisID string, in UpdateHypothesisInput) (*Incident, error) {
	if in.Confidence != nil && !in.Confidence.IsValid() {
		return nil, NewValidationError("confidence", fmt.Sprintf("must be high, medium or low (got %q)", *in.Confidence))
	}

	return s.mutate(ctx, id, func(inc *Incident) error {
		h := inc.Hypothesis(hypothesisID)
		if h == nil {
			return hypothesisNotFound(id, hypothesisID)
		}
		h.SupportingEvidence = append(h.SupportingEvidence, in.SupportingEvidence...)
		h.CounterEvidence = append(h.CounterEvidence, in.CounterEvidence...)
		if in.Confidence != nil {
			h.Confidence = *in.Confidence
		}
		return nil
	})
}

// RuleOutHypothesis moves an investigating hypothesis to ruled_out and
// records the reason in the ruled_out audit list.
func (s *Service) RuleOutHypothesis(ctx context.Context, id, hypothesisID, reason string) (*Incident, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, NewValidationError("reason", "required")
	}

	return s.mutate(ctx, id, func(inc *Incident) error {
		h := inc.Hypothesis(hypothesisID)
		if h == nil {
			return hypothesisNotFound(id, hypothesisID)
		}
		if h.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, hypothesisID, h.Status)
		}
		ts := s.timestamp()
		h.Status = HypothesisRuledOut
		h.RuledOutAt = ts
		inc.RuledOut = append(inc.RuledOut, RuledOutEntry{
			Hypothesis: h.Title,
			Reason:     reason,
			Timestamp:  ts,
		})
		return nil
	})
}

// ConfirmRootCause marks a hypothesis as the root cause and resolves the
// incident. Another hypothesis may already be confirmed; that is allowed and
// only logged.
func (s *Service) ConfirmRootCause(ctx context.Context, id, hypothesisID string) (*Incident, error) {
	var confirmed Hypothesis

	inc, err := s.mutate(ctx, id, func(inc *Incident) error {
		h := inc.Hypothesis(hypothesisID)
		if h == nil {
			return hypothesisNotFound(id, hypothesisID)
		}
		if h.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, hypothesisID, h.Status)
		}
		if prior := inc.ConfirmedRootCauses(); len(prior) > 0 {
			slog.Warn("Confirming additional root cause",
				"incident_id", id,
				"hypothesis_id", hypothesisID,
				"already_confirmed", prior[0].ID)
		}

		ts := s.timestamp()
		h.Status = HypothesisConfirmed
		inc.Metadata.Status = StatusResolved
		inc.Summary = Summary{
			Text:      "Root cause confirmed: " + h.Title,
			UpdatedAt: ts,
		}
		inc.Timeline = append(inc.Timeline, TimelineEvent{
			Timestamp: ts,
			Label:     LabelRootCauseConfirmed,
			Source:    SourceAgent,
			Detail:    h.Title,
		})
		sortTimeline(inc.Timeline)
		confirmed = *h
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Root cause confirmed", "incident_id", id, "hypothesis_id", hypothesisID)
	if s.notifier != nil {
		s.notifier.RootCauseConfirmed(ctx, inc, &confirmed)
	}
	return inc, nil
}

// AddFinding appends a finding.
func (s *Service) AddFinding(ctx context.Context, id string, in FindingInput) (*Incident, error) {
	if !in.Type.IsValid() {
		return nil, NewValidationError("type", fmt.Sprintf("must be error, metric or config_change (got %q)", in.Type))
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, NewValidationError("description", "required")
	}
	ts, err := s.resolveTimestamp(in.Timestamp)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, func(inc *Incident) error {
		inc.Findings = append(inc.Findings, Finding{
			Type:        in.Type,
			Description: in.Description,
			Service:     in.Service,
			Timestamp:   ts,
			Value:       in.Value,
		})
		return nil
	})
}

// UpdateSummary overwrites the incident's TL;DR.
func (s *Service) UpdateSummary(ctx context.Context, id, text string) (*Incident, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewValidationError("summary", "required")
	}

	return s.mutate(ctx, id, func(inc *Incident) error {
		inc.Summary = Summary{Text: text, UpdatedAt: s.timestamp()}
		return nil
	})
}

// SetStatus moves the incident between investigating and escalated.
// resolved is reached only through ConfirmRootCause, and an incident with a
// confirmed root cause stays resolved.
func (s *Service) SetStatus(ctx context.Context, id string, status Status, note string) (*Incident, error) {
	if !status.IsValid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	if status == StatusResolved {
		return nil, NewValidationError("status", "resolved is set by confirming a root cause")
	}

	return s.mutate(ctx, id, func(inc *Incident) error {
		if len(inc.ConfirmedRootCauses()) > 0 {
			return fmt.Errorf("%w: incident %s has a confirmed root cause", ErrInvalidTransition, id)
		}
		if inc.Metadata.Status == status {
			return nil
		}
		inc.Metadata.Status = status
		inc.Timeline = append(inc.Timeline, TimelineEvent{
			Timestamp: s.timestamp(),
			Label:     "Status changed to " + string(status),
			Source:    SourceAgent,
			Detail:    note,
		})
		sortTimeline(inc.Timeline)
		return nil
	})
}

// GetIncident returns the full record.
func (s *Service) GetIncident(ctx context.Context, id string) (*Incident, error) {
	return s.load(ctx, id)
}

// GetHypotheses returns the incident's hypotheses.
func (s *Service) GetHypotheses(ctx context.Context, id string) ([]Hypothesis, error) {
	inc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return inc.Hypotheses, nil
}

// GetTimeline returns the incident's timeline, oldest first.
func (s *Service) GetTimeline(ctx context.Context, id string) ([]TimelineEvent, error) {
	inc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return inc.Timeline, nil
}

// ListIncidents returns a digest of every stored incident in id order.
func (s *Service) ListIncidents(ctx context.Context) ([]Digest, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}

	digests := make([]Digest, 0, len(ids))
	for _, id := range ids {
		inc, ok, err := s.store.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load incident %s: %w", id, err)
		}
		if !ok {
			continue
		}
		digests = append(digests, inc.Digest())
	}
	return digests, nil
}

func (s *Service) load(ctx context.Context, id string) (*Incident, error) {
	if id == "" {
		return nil, NewValidationError("incident_id", "required")
	}
	inc, ok, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident %s: %w", id, err)
	}
	if !ok {
		return nil, incidentNotFound(id)
	}
	inc.normalize()
	return inc, nil
}

func (s *Service) mutate(ctx context.Context, id string, apply func(inc *Incident) error) (*Incident, error) {
	inc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(inc); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to save incident %s: %w", id, err)
	}
	return inc, nil
}

func (s *Service) resolveTimestamp(ts string) (string, error) {
	if ts == "" {
		return s.timestamp(), nil
	}
	return NormalizeTimestamp(ts)
}

// sortTimeline orders events by timestamp. Equal timestamps keep their
// insertion order.
func sortTimeline(events []TimelineEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
}
