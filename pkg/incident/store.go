package incident

import "context"

// Store persists incident records keyed by id.
//
// Save overwrites the whole document; there is no version check, so the last
// writer wins. A missing record is reported by Load as (nil, false, nil) so
// callers can tell absence from I/O failure. Failures wrap ErrStorage.
type Store interface {
	Load(ctx context.Context, id string) (*Incident, bool, error)
	Save(ctx context.Context, inc *Incident) error
	Exists(ctx context.Context, id string) (bool, error)
	// ListIDs returns ids in ascending order.
	ListIDs(ctx context.Context) ([]string, error)
}

// Notifier is told about milestones worth broadcasting. Implementations must
// not block for long and must swallow their own errors.
type Notifier interface {
	IncidentCreated(ctx context.Context, inc *Incident)
	RootCauseConfirmed(ctx context.Context, inc *Incident, h *Hypothesis)
}
