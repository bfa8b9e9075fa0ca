package incident

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memStore, *recordingNotifier) {
	t.Helper()
	store := newMemStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, notifier, "default-investigator")
	svc.now = steppingClock(testStart)
	return svc, store, notifier
}

func createCheckoutIncident(t *testing.T, svc *Service) *Incident {
	t.Helper()
	inc, err := svc.CreateIncident(context.Background(), CreateIncidentInput{
		Name:         "Checkout 500 Errors",
		Severity:     SeverityCritical,
		Services:     []string{"checkout-api"},
		Investigator: "alice",
		Description:  "Users report 500s at checkout",
	})
	require.NoError(t, err)
	return inc
}

// assertRoundTrip checks the stored document equals what the operation returned.
func assertRoundTrip(t *testing.T, store *memStore, want *Incident) {
	t.Helper()
	got, ok, err := store.Load(context.Background(), want.ID)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored record differs from returned record (-returned +stored):\n%s", diff)
	}
}

// assertInvariants checks the record-level invariants that must hold after any operation.
func assertInvariants(t *testing.T, inc *Incident) {
	t.Helper()
	confirmed := len(inc.ConfirmedRootCauses()) > 0
	assert.Equal(t, confirmed, inc.Metadata.Status == StatusResolved, "resolved iff a root cause is confirmed")

	seen := map[string]bool{}
	for _, h := range inc.Hypotheses {
		assert.False(t, seen[h.ID], "duplicate hypothesis id %s", h.ID)
		seen[h.ID] = true
		assert.Equal(t, h.Status == HypothesisRuledOut, h.RuledOutAt != "", "ruled_out_at iff ruled_out for %s", h.ID)
	}

	for i := 1; i < len(inc.Timeline); i++ {
		assert.LessOrEqual(t, inc.Timeline[i-1].Timestamp, inc.Timeline[i].Timestamp, "timeline out of order at %d", i)
	}
}

func TestCreateIncident(t *testing.T) {
	svc, store, notifier := newTestService(t)

	inc := createCheckoutIncident(t, svc)

	assert.Regexp(t, regexp.MustCompile(`^inc_[0-9a-z]+_[0-9a-f]{8}$`), inc.ID)
	assert.Equal(t, "Checkout 500 Errors", inc.Name)
	assert.Equal(t, StatusInvestigating, inc.Metadata.Status)
	assert.Equal(t, SeverityCritical, inc.Metadata.Severity)
	assert.Equal(t, []string{"checkout-api"}, inc.Metadata.AffectedServices)
	assert.Equal(t, "alice", inc.Metadata.Investigator)
	assert.Equal(t, "2024-05-01T10:00:00.000Z", inc.Metadata.CreatedAt)
	assert.Equal(t, "Users report 500s at checkout", inc.Summary.Text)

	require.Len(t, inc.Timeline, 1)
	assert.Equal(t, LabelInvestigationStarted, inc.Timeline[0].Label)
	assert.Equal(t, SourceUser, inc.Timeline[0].Source)
	assert.Equal(t, "Users report 500s at checkout", inc.Timeline[0].Detail)

	assert.Empty(t, inc.Hypotheses)
	assert.NotNil(t, inc.Hypotheses)
	assert.Equal(t, []string{inc.ID}, notifier.created)
	assertRoundTrip(t, store, inc)
	assertInvariants(t, inc)
}

func TestCreateIncidentDefaultsAndValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	inc, err := svc.CreateIncident(ctx, CreateIncidentInput{
		Name:     "Latency spike",
		Severity: SeverityLow,
		Services: []string{" search ", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "default-investigator", inc.Metadata.Investigator)
	assert.Equal(t, []string{"search"}, inc.Metadata.AffectedServices)

	_, err = svc.CreateIncident(ctx, CreateIncidentInput{Name: "", Severity: SeverityLow})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateIncident(ctx, CreateIncidentInput{Name: "x", Severity: "catastrophic"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.True(t, IsValidationError(err))
}

func TestCreateIncidentIDsAreUnique(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.now = func() time.Time { return testStart }

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		inc, err := svc.CreateIncident(context.Background(), CreateIncidentInput{Name: "n", Severity: SeverityLow})
		require.NoError(t, err)
		assert.False(t, seen[inc.ID])
		seen[inc.ID] = true
	}
}

func TestAddTimelineEventKeepsOrder(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)

	inserts := []TimelineEventInput{
		{Label: "deploy", Source: SourceMetrics, Timestamp: "2024-05-01T09:30:00Z"},
		{Label: "errors begin", Source: SourceLogs, Timestamp: "2024-05-01T09:45:00+00:00"},
		{Label: "page", Source: SourceUser, Timestamp: "2024-05-01T11:50:00+02:00"}, // 09:50Z
		{Label: "early", Source: SourceAgent, Timestamp: "2024-04-30T23:00:00.5Z"},
		{Label: "now", Source: SourceAgent},
	}
	var err error
	for _, in := range inserts {
		inc, err = svc.AddTimelineEvent(ctx, inc.ID, in)
		require.NoError(t, err)
		assertInvariants(t, inc)
	}

	labels := make([]string, len(inc.Timeline))
	for i, ev := range inc.Timeline {
		labels[i] = ev.Label
	}
	assert.Equal(t, []string{"early", "deploy", "errors begin", "page", LabelInvestigationStarted, "now"}, labels)
	assert.Equal(t, "2024-04-30T23:00:00.500Z", inc.Timeline[0].Timestamp)
	assert.Equal(t, "2024-05-01T09:50:00.000Z", inc.Timeline[3].Timestamp)
	assertRoundTrip(t, store, inc)
}

func TestAddTimelineEventEqualTimestampsKeepInsertionOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)

	for _, label := range []string{"a", "b", "c"} {
		var err error
		inc, err = svc.AddTimelineEvent(ctx, inc.ID, TimelineEventInput{Label: label, Source: SourceLogs, Timestamp: "2024-05-01T08:00:00Z"})
		require.NoError(t, err)
	}
	assert.Equal(t, "a", inc.Timeline[0].Label)
	assert.Equal(t, "b", inc.Timeline[1].Label)
	assert.Equal(t, "c", inc.Timeline[2].Label)
}

func TestAddTimelineEventValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)

	_, err := svc.AddTimelineEvent(ctx, inc.ID, TimelineEventInput{Label: "x", Source: "pager"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddTimelineEvent(ctx, inc.ID, TimelineEventInput{Label: "x", Source: SourceLogs, Timestamp: "yesterday"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddTimelineEvent(ctx, "inc_missing", TimelineEventInput{Label: "x", Source: SourceLogs})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHypothesisLifecycle(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)

	inc, err := svc.ProposeHypothesis(ctx, inc.ID, ProposeHypothesisInput{
		Title:      "DB pool exhaustion",
		ProposedBy: ProposerAgent,
		Evidence:   []string{"connection timeouts"},
		Confidence: ConfidenceMedium,
	})
	require.NoError(t, err)
	require.Len(t, inc.Hypotheses, 1)
	h1 := inc.Hypotheses[0]
	assert.Equal(t, "hyp_1", h1.ID)
	assert.Equal(t, HypothesisInvestigating, h1.Status)
	assert.Equal(t, []string{"connection timeouts"}, h1.SupportingEvidence)
	assert.Empty(t, h1.RuledOutAt)
	assertInvariants(t, inc)

	inc, err = svc.RuleOutHypothesis(ctx, inc.ID, "hyp_1", "timeouts unrelated to pool size")
	require.NoError(t, err)
	h1 = *inc.Hypothesis("hyp_1")
	assert.Equal(t, HypothesisRuledOut, h1.Status)
	assert.NotEmpty(t, h1.RuledOutAt)
	require.Len(t, inc.RuledOut, 1)
	assert.Equal(t, "DB pool exhaustion", inc.RuledOut[0].Hypothesis)
	assert.Equal(t, "timeouts unrelated to pool size", inc.RuledOut[0].Reason)
	assert.Equal(t, h1.RuledOutAt, inc.RuledOut[0].Timestamp)
	assertInvariants(t, inc)
	assertRoundTrip(t, store, inc)

	inc, err = svc.ProposeHypothesis(ctx, inc.ID, ProposeHypothesisInput{Title: "Bad payment-gateway config", Confidence: ConfidenceHigh})
	require.NoError(t, err)
	assert.Equal(t, "hyp_2", inc.Hypotheses[1].ID)
	assert.Equal(t, ProposerAgent, inc.Hypotheses[1].ProposedBy)

	timelineBefore := len(inc.Timeline)
	inc, err = svc.ConfirmRootCause(ctx, inc.ID, "hyp_2")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, inc.Metadata.Status)
	assert.Equal(t, HypothesisConfirmed, inc.Hypothesis("hyp_2").Status)
	assert.Contains(t, inc.Summary.Text, "Bad payment-gateway config")
	require.Len(t, inc.Timeline, timelineBefore+1)
	last := inc.Timeline[len(inc.Timeline)-1]
	assert.Equal(t, LabelRootCauseConfirmed, last.Label)
	assert.Equal(t, SourceAgent, last.Source)
	assert.Equal(t, []string{"hyp_2"}, notifier.confirmed)
	assertInvariants(t, inc)
	assertRoundTrip(t, store, inc)
}

func TestHypothesisTerminalStates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)

	for i := 0; i < 2; i++ {
		var err error
		inc, err = svc.ProposeHypothesis(ctx, inc.ID, ProposeHypothesisInput{Title: fmt.Sprintf("h%d", i+1)})
		require.NoError(t, err)
	}
	_, err := svc.RuleOutHypothesis(ctx, inc.ID, "hyp_1", "no")
	require.NoError(t, err)
	_, err = svc.ConfirmRootCause(ctx, inc.ID, "hyp_2")
	require.NoError(t, err)

	_, err = svc.ConfirmRootCause(ctx, inc.ID, "hyp_1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.RuleOutHypothesis(ctx, inc.ID, "hyp_1", "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.RuleOutHypothesis(ctx, inc.ID, "hyp_2", "changed my mind")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := svc.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Len(t, stored.RuledOut, 1, "rejected transitions leave no audit entry")
	assertInvariants(t, stored)
}

func TestConfirmSecondRootCauseIsAllowed(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)

	for _, title := range []string{"cache stampede", "hot shard"} {
		var err error
		inc, err = svc.ProposeHypothesis(ctx, inc.ID, ProposeHypothesisInput{Title: title})
		require.NoError(t, err)
	}
	_, err := svc.ConfirmRootCause(ctx, inc.ID, "hyp_1")
	require.NoError(t, err)
	inc, err = svc.ConfirmRootCause(ctx, inc.ID, "hyp_2")
	require.NoError(t, err)

	assert.Len(t, inc.ConfirmedRootCauses(), 2)
	assert.Equal(t, StatusResolved, inc.Metadata.Status)
	assert.Equal(t, "Root cause confirmed: hot shard", inc.Summary.Text)
}

func TestHypothesisIDsNeverReassigned(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)

	for i := 0; i < 4; i++ {
		var err error
		inc, err = svc.ProposeHypothesis(ctx, inc.ID, ProposeHypothesisInput{Title: fmt.Sprintf("h%d", i)})
		require.NoError(t, err)
		if i == 1 {
			inc, err = svc.RuleOutHypothesis(ctx, inc.ID, "hyp_1", "nope")
			require.NoError(t, err)
		}
	}

	ids := []string{}
	for _, h := range inc.Hypotheses {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"hyp_1", "hyp_2", "hyp_3", "hyp_4"}, ids)
	assert.Equal(t, "h0", inc.Hypothesis("hyp_1").Title)
}

func TestUpdateHypothesis(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)
	inc, err := svc.ProposeHypothesis(ctx, inc.ID, ProposeHypothesisInput{Title: "t", Evidence: []string{"a"}, Confidence: ConfidenceLow})
	require.NoError(t, err)

	high := ConfidenceHigh
	inc, err = svc.UpdateHypothesis(ctx, inc.ID, "hyp_1", UpdateHypothesisInput{
		SupportingEvidence: []string{"b", "a"},
		CounterEvidence:    []string{"c"},
		Confidence:         &high,
	})
	require.NoError(t, err)
	h := inc.Hypothesis("hyp_1")
	assert.Equal(t, []string{"a", "b", "a"}, h.SupportingEvidence, "evidence is appended without dedup")
	assert.Equal(t, []string{"c"}, h.CounterEvidence)
	assert.Equal(t, ConfidenceHigh, h.Confidence)
	assertRoundTrip(t, store, inc)

	_, err = svc.UpdateHypothesis(ctx, inc.ID, "hyp_9", UpdateHypothesisInput{})
	assert.ErrorIs(t, err, ErrNotFound)

	bogus := Confidence("certain")
	_, err = svc.UpdateHypothesis(ctx, inc.ID, "hyp_1", UpdateHypothesisInput{Confidence: &bogus})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateHypothesisNoChangesStillPersists(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)
	before, err := svc.ProposeHypothesis(ctx, inc.ID, ProposeHypothesisInput{Title: "t", Evidence: []string{"e1"}})
	require.NoError(t, err)
	saves := store.saves

	after, err := svc.UpdateHypothesis(ctx, inc.ID, "hyp_1", UpdateHypothesisInput{})
	require.NoError(t, err)

	assert.Equal(t, saves+1, store.saves)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("no-op update changed the record:\n%s", diff)
	}
	assertRoundTrip(t, store, after)
}

func TestAddFindingAndSummary(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)

	inc, err := svc.AddFinding(ctx, inc.ID, FindingInput{
		Type:        FindingMetric,
		Description: "p99 latency up 8x",
		Service:     "checkout-api",
		Value:       "2.4s",
		Timestamp:   "2024-05-01T09:40:00Z",
	})
	require.NoError(t, err)
	require.Len(t, inc.Findings, 1)
	assert.Equal(t, "2.4s", inc.Findings[0].Value)
	assert.Equal(t, "2024-05-01T09:40:00.000Z", inc.Findings[0].Timestamp)

	inc, err = svc.UpdateSummary(ctx, inc.ID, "Latency from gateway retries")
	require.NoError(t, err)
	assert.Equal(t, "Latency from gateway retries", inc.Summary.Text)
	assert.Greater(t, inc.Summary.UpdatedAt, inc.Metadata.CreatedAt)
	assertRoundTrip(t, store, inc)

	_, err = svc.AddFinding(ctx, inc.ID, FindingInput{Type: "rumor", Description: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UpdateSummary(ctx, inc.ID, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSetStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)

	inc, err := svc.SetStatus(ctx, inc.ID, StatusEscalated, "paged database team")
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, inc.Metadata.Status)
	assert.Equal(t, "Status changed to escalated", inc.Timeline[len(inc.Timeline)-1].Label)

	_, err = svc.SetStatus(ctx, inc.ID, StatusResolved, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ProposeHypothesis(ctx, inc.ID, ProposeHypothesisInput{Title: "t"})
	require.NoError(t, err)
	inc, err = svc.ConfirmRootCause(ctx, inc.ID, "hyp_1")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, inc.Metadata.Status)

	_, err = svc.SetStatus(ctx, inc.ID, StatusInvestigating, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReadOperationsOnMissingIncident(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	inc, ok, err := store.Load(ctx, "inc_never")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, inc)

	_, err = svc.GetIncident(ctx, "inc_never")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetHypotheses(ctx, "inc_never")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetTimeline(ctx, "inc_never")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.RuleOutHypothesis(ctx, "inc_never", "hyp_1", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorageFailuresSurface(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	inc := createCheckoutIncident(t, svc)

	store.failErr = fmt.Errorf("%w: %v", ErrStorage, errDiskGone)

	_, err := svc.GetIncident(ctx, inc.ID)
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = svc.CreateIncident(ctx, CreateIncidentInput{Name: "n", Severity: SeverityHigh})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestListIncidents(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := createCheckoutIncident(t, svc)
	b, err := svc.CreateIncident(ctx, CreateIncidentInput{Name: "Search slow", Severity: SeverityMedium})
	require.NoError(t, err)

	digests, err := svc.ListIncidents(ctx)
	require.NoError(t, err)
	require.Len(t, digests, 2)

	byID := map[string]Digest{}
	for _, d := range digests {
		byID[d.ID] = d
	}
	assert.Equal(t, "Checkout 500 Errors", byID[a.ID].Name)
	assert.Equal(t, SeverityMedium, byID[b.ID].Severity)
	assert.Equal(t, StatusInvestigating, byID[b.ID].Status)
}

func TestNormalizeTimestamp(t *testing.T) {
	got, err := NormalizeTimestamp("2024-01-02T03:04:05.123456789-05:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T08:04:05.123Z", got)

	_, err = NormalizeTimestamp("2024-01-02 03:04")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
