package incident

// Status is the incident lifecycle state.
type Status string

const (
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
	StatusEscalated     Status = "escalated"
)

// IsValid checks if the status is known
func (s Status) IsValid() bool {
	return s == StatusInvestigating || s == StatusResolved || s == StatusEscalated
}

// Severity ranks the incident's impact.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity is known
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// Source says where a timeline event came from.
type Source string

const (
	SourceLogs    Source = "logs"
	SourceUser    Source = "user"
	SourceAgent   Source = "agent"
	SourceMetrics Source = "metrics"
)

// IsValid checks if the source is known
func (s Source) IsValid() bool {
	switch s {
	case SourceLogs, SourceUser, SourceAgent, SourceMetrics:
		return true
	default:
		return false
	}
}

// Proposer identifies who put a hypothesis forward.
type Proposer string

const (
	ProposerAgent Proposer = "agent"
	ProposerUser  Proposer = "user"
)

// IsValid checks if the proposer is known
func (p Proposer) IsValid() bool {
	return p == ProposerAgent || p == ProposerUser
}

// HypothesisStatus is the hypothesis state. investigating is initial;
// confirmed_root_cause and ruled_out are terminal.
type HypothesisStatus string

const (
	HypothesisInvestigating HypothesisStatus = "investigating"
	HypothesisConfirmed     HypothesisStatus = "confirmed_root_cause"
	HypothesisRuledOut      HypothesisStatus = "ruled_out"
)

// IsTerminal reports whether no transition leaves this state.
func (s HypothesisStatus) IsTerminal() bool {
	return s == HypothesisConfirmed || s == HypothesisRuledOut
}

// Confidence is a coarse likelihood attached to a hypothesis.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// IsValid checks if the confidence is known
func (c Confidence) IsValid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

// FindingType classifies a finding.
type FindingType string

const (
	FindingError        FindingType = "error"
	FindingMetric       FindingType = "metric"
	FindingConfigChange FindingType = "config_change"
)

// IsValid checks if the finding type is known
func (f FindingType) IsValid() bool {
	return f == FindingError || f == FindingMetric || f == FindingConfigChange
}

// Incident is the persisted record. JSON field names are the on-disk format.
type Incident struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Metadata   Metadata        `json:"metadata"`
	Summary    Summary         `json:"summary"`
	Timeline   []TimelineEvent `json:"timeline"`
	Hypotheses []Hypothesis    `json:"hypotheses"`
	Findings   []Finding       `json:"findings"`
	RuledOut   []RuledOutEntry `json:"ruled_out"`
}

type Metadata struct {
	CreatedAt        string   `json:"created_at"`
	Status           Status   `json:"status"`
	Severity         Severity `json:"severity"`
	AffectedServices []string `json:"affected_services"`
	Investigator     string   `json:"investigator"`
}

type Summary struct {
	Text      string `json:"text"`
	UpdatedAt string `json:"updated_at"`
}

type TimelineEvent struct {
	Timestamp string `json:"timestamp"`
	Label     string `json:"label"`
	Source    Source `json:"source"`
	Detail    string `json:"detail"`
}

type Hypothesis struct {
	ID                 string           `json:"id"`
	Title              string           `json:"title"`
	ProposedAt         string           `json:"proposed_at"`
	ProposedBy         Proposer         `json:"proposed_by"`
	Status             HypothesisStatus `json:"status"`
	Confidence         Confidence       `json:"confidence"`
	SupportingEvidence []string         `json:"supporting_evidence"`
	CounterEvidence    []string         `json:"counter_evidence"`
	RuledOutAt         string           `json:"ruled_out_at,omitempty"`
}

type Finding struct {
	Type        FindingType `json:"type"`
	Description string      `json:"description"`
	Service     string      `json:"service"`
	Timestamp   string      `json:"timestamp"`
	Value       string      `json:"value,omitempty"`
}

// RuledOutEntry is the audit trail of rejected hypotheses. It snapshots the
// title so the entry survives later edits to the hypothesis list.
type RuledOutEntry struct {
	Hypothesis string `json:"hypothesis"`
	Reason     string `json:"reason"`
	Timestamp  string `json:"timestamp"`
}

// Digest is the one-line view used by list operations.
type Digest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Status    Status   `json:"status"`
	Severity  Severity `json:"severity"`
	CreatedAt string   `json:"created_at"`
}

// Hypothesis returns a pointer into inc.Hypotheses, or nil.
func (inc *Incident) Hypothesis(id string) *Hypothesis {
	for i := range inc.Hypotheses {
		if inc.Hypotheses[i].ID == id {
			return &inc.Hypotheses[i]
		}
	}
	return nil
}

// ConfirmedRootCauses returns the hypotheses currently confirmed.
func (inc *Incident) ConfirmedRootCauses() []Hypothesis {
	var out []Hypothesis
	for _, h := range inc.Hypotheses {
		if h.Status == HypothesisConfirmed {
			out = append(out, h)
		}
	}
	return out
}

// Digest summarizes the incident for listings.
func (inc *Incident) Digest() Digest {
	return Digest{
		ID:        inc.ID,
		Name:      inc.Name,
		Status:    inc.Metadata.Status,
		Severity:  inc.Metadata.Severity,
		CreatedAt: inc.Metadata.CreatedAt,
	}
}

// normalize replaces nil slices so documents always carry [] instead of null.
func (inc *Incident) normalize() {
	if inc.Metadata.AffectedServices == nil {
		inc.Metadata.AffectedServices = []string{}
	}
	if inc.Timeline == nil {
		inc.Timeline = []TimelineEvent{}
	}
	if inc.Hypotheses == nil {
		inc.Hypotheses = []Hypothesis{}
	}
	for i := range inc.Hypotheses {
		if inc.Hypotheses[i].SupportingEvidence == nil {
			inc.Hypotheses[i].SupportingEvidence = []string{}
		}
		if inc.Hypotheses[i].CounterEvidence == nil {
			inc.Hypotheses[i].CounterEvidence = []string{}
		}
	}
	if inc.Findings == nil {
		inc.Findings = []Finding{}
	}
	if inc.RuledOut == nil {
		inc.RuledOut = []RuledOutEntry{}
	}
}
