package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"
)

// genesisBlockHeight is where the local chain's numbering starts.
const genesisBlockHeight = 1000

// Memory is a purely local, deterministic ledger for tests and offline
// use. Heights are monotonic across all properties, like a real chain.
type Memory struct {
	identity string
	now      func() time.Time

	mu      sync.Mutex
	height  int64
	latest  map[string]*Entry
	history map[string][][]byte
}

// NewMemory creates an in-memory ledger. now may be nil for the wall clock.
func NewMemory(identity string, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		identity: identity,
		now:      now,
		height:   genesisBlockHeight - 1,
		latest:   make(map[string]*Entry),
		history:  make(map[string][][]byte),
	}
}

// Put appends an entry.
func (m *Memory) Put(_ context.Context, propertyID string, fingerprint []byte, riskScore int) (*Receipt, error) {
	if propertyID == "" || len(fingerprint) == 0 {
		return nil, ErrRejected
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.latest[propertyID]; ok {
		m.history[propertyID] = append(m.history[propertyID], prev.Fingerprint)
	}

	m.height++
	entry := &Entry{
		PropertyID:       propertyID,
		Fingerprint:      append([]byte(nil), fingerprint...),
		RiskScore:        riskScore,
		VerifierIdentity: m.identity,
		BlockHeight:      m.height,
		Timestamp:        m.now().UTC(),
	}
	m.latest[propertyID] = entry

	return &Receipt{
		Handle:      fmt.Sprintf("local-%d", entry.BlockHeight),
		BlockHeight: entry.BlockHeight,
		Timestamp:   entry.Timestamp,
	}, nil
}

// Get returns the latest entry for a property.
func (m *Memory) Get(_ context.Context, propertyID string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.latest[propertyID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	cp.Fingerprint = append([]byte(nil), entry.Fingerprint...)
	return &cp, nil
}

// History returns superseded fingerprints, oldest first.
func (m *Memory) History(_ context.Context, propertyID string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist := m.history[propertyID]
	out := make([][]byte, len(hist))
	for i, fp := range hist {
		out[i] = append([]byte(nil), fp...)
	}
	return out, nil
}

// Verify compares fingerprint against the latest entry.
func (m *Memory) Verify(ctx context.Context, propertyID string, fingerprint []byte) (bool, error) {
	entry, err := m.Get(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return bytes.Equal(entry.Fingerprint, fingerprint), nil
}

// Status reports the in-memory chain head.
func (m *Memory) Status(_ context.Context) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &Status{Backend: "memory", Available: true, BlockHeight: m.height}, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
