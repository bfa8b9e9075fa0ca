package incident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memStore keeps serialized documents so tests observe exactly what a real
// backend would hand back.
type memStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	saves   int
	failErr error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (m *memStore) Load(_ context.Context, id string) (*Incident, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, false, m.failErr
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, false, nil
	}
	var inc Incident
	if err := json.Unmarshal(doc, &inc); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &inc, true, nil
}

func (m *memStore) Save(_ context.Context, inc *Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	doc, err := json.Marshal(inc)
	if err != nil {
		return err
	}
	m.docs[inc.ID] = doc
	m.saves++
	return nil
}

func (m *memStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[id]
	return ok, nil
}

func (m *memStore) ListIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type recordingNotifier struct {
	created   []string
	confirmed []string
}

func (n *recordingNotifier) IncidentCreated(_ context.Context, inc *Incident) {
	n.created = append(n.created, inc.ID)
}

func (n *recordingNotifier) RootCauseConfirmed(_ context.Context, _ *Incident, h *Hypothesis) {
	n.confirmed = append(n.confirmed, h.ID)
}

// steppingClock returns a time that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(time.Second)
		return t
	}
}

var errDiskGone = errors.New("disk gone")
