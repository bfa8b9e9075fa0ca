package tools

import (
	"context"

	"github.com/codeready-toolchain/sherlog/pkg/incident"
)

// Memory tool names.
const (
	ToolCreateIncident    = "create_incident"
	ToolAddTimelineEvent  = "add_timeline_event"
	ToolProposeHypothesis = "propose_hypothesis"
	ToolUpdateHypothesis  = "update_hypothesis"
	ToolRuleOutHypothesis = "rule_out_hypothesis"
	ToolConfirmRootCause  = "confirm_root_cause"
	ToolAddFinding        = "add_finding"
	ToolUpdateTLDR        = "update_tldr"
	ToolGetIncident       = "get_incident"
	ToolGetHypotheses     = "get_hypotheses"
	ToolGetTimeline       = "get_timeline"
	ToolListIncidents     = "list_incidents"
	ToolSetIncidentStatus = "set_incident_status"
)

type createIncidentInput struct {
	Name         string   `json:"name"`
	Severity     string   `json:"severity"`
	Services     []string `json:"services"`
	Investigator string   `json:"investigator"`
	Description  string   `json:"description"`
}

func (in createIncidentInput) validate() error {
	return required("name", in.Name, "severity", in.Severity)
}

type addTimelineEventInput struct {
	IncidentID string `json:"incident_id"`
	Label      string `json:"label"`
	Source     string `json:"source"`
	Detail     string `json:"detail"`
	Timestamp  string `json:"timestamp"`
}

func (in addTimelineEventInput) validate() error {
	return required("incident_id", in.IncidentID, "label", in.Label, "source", in.Source)
}

type proposeHypothesisInput struct {
	IncidentID string   `json:"incident_id"`
	Title      string   `json:"title"`
	ProposedBy string   `json:"proposed_by"`
	Evidence   []string `json:"evidence"`
	Confidence string   `json:"confidence"`
}

func (in proposeHypothesisInput) validate() error {
	return required("incident_id", in.IncidentID, "title", in.Title)
}

type updateHypothesisInput struct {
	IncidentID         string   `json:"incident_id"`
	HypothesisID       string   `json:"hypothesis_id"`
	SupportingEvidence []string `json:"supporting_evidence"`
	CounterEvidence    []string `json:"counter_evidence"`
	Confidence         *string  `json:"confidence"`
}

func (in updateHypothesisInput) validate() error {
	return required("incident_id", in.IncidentID, "hypothesis_id", in.HypothesisID)
}

type ruleOutHypothesisInput struct {
	IncidentID   string `json:"incident_id"`
	HypothesisID string `json:"hypothesis_id"`
	Reason       string `json:"reason"`
}

func (in ruleOutHypothesisInput) validate() error {
	return required("incident_id", in.IncidentID, "hypothesis_id", in.HypothesisID, "reason", in.Reason)
}

type confirmRootCauseInput struct {
	IncidentID   string `json:"incident_id"`
	HypothesisID string `json:"hypothesis_id"`
}

func (in confirmRootCauseInput) validate() error {
	return required("incident_id", in.IncidentID, "hypothesis_id", in.HypothesisID)
}

type addFindingInput struct {
	IncidentID  string `json:"incident_id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Service     string `json:"service"`
	Value       string `json:"value"`
	Timestamp   string `json:"timestamp"`
}

func (in addFindingInput) validate() error {
	return required("incident_id", in.IncidentID, "type", in.Type, "description", in.Description)
}

type updateTLDRInput struct {
	IncidentID string `json:"incident_id"`
	Summary    string `json:"summary"`
}

func (in updateTLDRInput) validate() error {
	return required("incident_id", in.IncidentID, "summary", in.Summary)
}

type incidentRef struct {
	IncidentID string `json:"incident_id"`
}

func (in incidentRef) validate() error {
	return required("incident_id", in.IncidentID)
}

type listIncidentsInput struct{}

type setIncidentStatusInput struct {
	IncidentID string `json:"incident_id"`
	Status     string `json:"status"`
	Note       string `json:"note"`
}

func (in setIncidentStatusInput) validate() error {
	return required("incident_id", in.IncidentID, "status", in.Status)
}

var incidentIDProp = str("Incident id returned by create_incident, e.g. inc_lx2k9c1a_3f9a01bc")

// MemoryTools returns the incident-memory tools backed by svc.
func MemoryTools(svc *incident.Service) []Tool {
	return []Tool{
		{
			Definition: Definition{
				Name:        ToolCreateIncident,
				Description: "Open a new incident record. Call this once at the start of an investigation; the returned id is needed by every other incident tool.",
				InputSchema: object(map[string]any{
					"name":         str("Short incident title, e.g. 'Checkout 500 errors'"),
					"severity":     enum("Impact level", "critical", "high", "medium", "low"),
					"services":     strList("Affected services"),
					"investigator": str("Person leading the investigation (defaults to the operator)"),
					"description":  str("What was observed; becomes the initial summary"),
				}, "name", "severity"),
			},
			Execute: typed(func(ctx context.Context, in createIncidentInput) (any, error) {
				return svc.CreateIncident(ctx, incident.CreateIncidentInput{
					Name:         in.Name,
					Severity:     incident.Severity(in.Severity),
					Services:     in.Services,
					Investigator: in.Investigator,
					Description:  in.Description,
				})
			}),
		},
		{
			Definition: Definition{
				Name:        ToolAddTimelineEvent,
				Description: "Record something that happened during the incident. The timeline is kept in chronological order.",
				InputSchema: object(map[string]any{
					"incident_id": incidentIDProp,
					"label":       str("One-line description of the event"),
					"source":      enum("Where the event was observed", "logs", "user", "agent", "metrics"),
					"detail":      str("Supporting detail, e.g. a log excerpt"),
					"timestamp":   str("When it happened (RFC 3339). Defaults to now"),
				}, "incident_id", "label", "source"),
			},
			Execute: typed(func(ctx context.Context, in addTimelineEventInput) (any, error) {
				return svc.AddTimelineEvent(ctx, in.IncidentID, incident.TimelineEventInput{
					Label:     in.Label,
					Source:    incident.Source(in.Source),
					Detail:    in.Detail,
					Timestamp: in.Timestamp,
				})
			}),
		},
		{
			Definition: Definition{
				Name:        ToolProposeHypothesis,
				Description: "Add a candidate root cause. Returns the record; the new hypothesis id is hyp_<n>.",
				InputSchema: object(map[string]any{
					"incident_id": incidentIDProp,
					"title":       str("The hypothesis in one sentence"),
					"proposed_by": enum("Who proposed it (default agent)", "agent", "user"),
					"evidence":    strList("Initial supporting evidence"),
					"confidence":  enum("Initial confidence (default medium)", "high", "medium", "low"),
				}, "incident_id", "title"),
			},
			Execute: typed(func(ctx context.Context, in proposeHypothesisInput) (any, error) {
				return svc.ProposeHypothesis(ctx, in.IncidentID, incident.ProposeHypothesisInput{
					Title:      in.Title,
					ProposedBy: incident.Proposer(in.ProposedBy),
					Evidence:   in.Evidence,
					Confidence: incident.Confidence(in.Confidence),
				})
			}),
		},
		{
			Definition: Definition{
				Name:        ToolUpdateHypothesis,
				Description: "Append evidence to a hypothesis and optionally change its confidence.",
				InputSchema: object(map[string]any{
					"incident_id":         incidentIDProp,
					"hypothesis_id":       str("Hypothesis id, e.g. hyp_1"),
					"supporting_evidence": strList("Evidence for the hypothesis to append"),
					"counter_evidence":    strList("Evidence against the hypothesis to append"),
					"confidence":          enum("New confidence", "high", "medium", "low"),
				}, "incident_id", "hypothesis_id"),
			},
			Execute: typed(func(ctx context.Context, in updateHypothesisInput) (any, error) {
				upd := incident.UpdateHypothesisInput{
					SupportingEvidence: in.SupportingEvidence,
					CounterEvidence:    in.CounterEvidence,
				}
				if in.Confidence != nil {
					c := incident.Confidence(*in.Confidence)
					upd.Confidence = &c
				}
				return svc.UpdateHypothesis(ctx, in.IncidentID, in.HypothesisID, upd)
			}),
		},
		{
			Definition: Definition{
				Name:        ToolRuleOutHypothesis,
				Description: "Rule a hypothesis out. This cannot be undone.",
				InputSchema: object(map[string]any{
					"incident_id":   incidentIDProp,
					"hypothesis_id": str("Hypothesis id, e.g. hyp_1"),
					"reason":        str("Why the evidence excludes it"),
				}, "incident_id", "hypothesis_id", "reason"),
			},
			Execute: typed(func(ctx context.Context, in ruleOutHypothesisInput) (any, error) {
				return svc.RuleOutHypothesis(ctx, in.IncidentID, in.HypothesisID, in.Reason)
			}),
		},
		{
			Definition: Definition{
				Name:        ToolConfirmRootCause,
				Description: "Confirm a hypothesis as the root cause. Marks the incident resolved and rewrites the summary.",
				InputSchema: object(map[string]any{
					"incident_id":   incidentIDProp,
					"hypothesis_id": str("Hypothesis id, e.g. hyp_2"),
				}, "incident_id", "hypothesis_id"),
			},
			Execute: typed(func(ctx context.Context, in confirmRootCauseInput) (any, error) {
				return svc.ConfirmRootCause(ctx, in.IncidentID, in.HypothesisID)
			}),
		},
		{
			Definition: Definition{
				Name:        ToolAddFinding,
				Description: "Record an observed fact: an error, a metric anomaly or a configuration change.",
				InputSchema: object(map[string]any{
					"incident_id": incidentIDProp,
					"type":        enum("Kind of finding", "error", "metric", "config_change"),
					"description": str("What was found"),
					"service":     str("Service the finding belongs to"),
					"value":       str("Optional measured value, e.g. '2.4s p99'"),
					"timestamp":   str("When it was observed (RFC 3339). Defaults to now"),
				}, "incident_id", "type", "description"),
			},
			Execute: typed(func(ctx context.Context, in addFindingInput) (any, error) {
				return svc.AddFinding(ctx, in.IncidentID, incident.FindingInput{
					Type:        incident.FindingType(in.Type),
					Description: in.Description,
					Service:     in.Service,
					Value:       in.Value,
					Timestamp:   in.Timestamp,
				})
			}),
		},
		{
			Definition: Definition{
				Name:        ToolUpdateTLDR,
				Description: "Replace the incident summary with a short current-state description.",
				InputSchema: object(map[string]any{
					"incident_id": incidentIDProp,
					"summary":     str("New summary text"),
				}, "incident_id", "summary"),
			},
			Execute: typed(func(ctx context.Context, in updateTLDRInput) (any, error) {
				return svc.UpdateSummary(ctx, in.IncidentID, in.Summary)
			}),
		},
		{
			Definition: Definition{
				Name:        ToolGetIncident,
				Description: "Read the full incident record.",
				InputSchema: object(map[string]any{"incident_id": incidentIDProp}, "incident_id"),
			},
			Execute: typed(func(ctx context.Context, in incidentRef) (any, error) {
				return svc.GetIncident(ctx, in.IncidentID)
			}),
		},
		{
			Definition: Definition{
				Name:        ToolGetHypotheses,
				Description: "List the hypotheses of an incident with their status and evidence.",
				InputSchema: object(map[string]any{"incident_id": incidentIDProp}, "incident_id"),
			},
			Execute: typed(func(ctx context.Context, in incidentRef) (any, error) {
				return svc.GetHypotheses(ctx, in.IncidentID)
			}),
		},
		{
			Definition: Definition{
				Name:        ToolGetTimeline,
				Description: "Read the incident timeline in chronological order.",
				InputSchema: object(map[string]any{"incident_id": incidentIDProp}, "incident_id"),
			},
			Execute: typed(func(ctx context.Context, in incidentRef) (any, error) {
				return svc.GetTimeline(ctx, in.IncidentID)
			}),
		},
		{
			Definition: Definition{
				Name:        ToolListIncidents,
				Description: "List stored incidents (id, name, status, severity). Use it to resume an earlier investigation.",
				InputSchema: object(map[string]any{}),
			},
			Execute: typed(func(ctx context.Context, _ listIncidentsInput) (any, error) {
				return svc.ListIncidents(ctx)
			}),
		},
		{
			Definition: Definition{
				Name:        ToolSetIncidentStatus,
				Description: "Escalate an incident or move it back to investigating. Resolution happens through confirm_root_cause.",
				InputSchema: object(map[string]any{
					"incident_id": incidentIDProp,
					"status":      enum("New status", "investigating", "escalated"),
					"note":        str("Why the status changes"),
				}, "incident_id", "status"),
			},
			Execute: typed(func(ctx context.Context, in setIncidentStatusInput) (any, error) {
				return svc.SetStatus(ctx, in.IncidentID, incident.Status(in.Status), in.Note)
			}),
		},
	}
}
