package verification

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/proptrust/backend/internal/domain"
	"github.com/proptrust/backend/internal/extraction"
	"github.com/proptrust/backend/internal/ledger"
)

// testLogger writes text logs to stdout like the rest of the suite.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// fakeExtractor treats the document bytes as the scanned text.
type fakeExtractor struct {
	languageHint string
	err          error
}

func (f *fakeExtractor) ExtractText(_ context.Context, document []byte, _ extraction.Format) (*extraction.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &extraction.Result{
		Pages:          []string{string(document)},
		PagesProcessed: 1,
		CharsOriginal:  len(document),
		LanguageHint:   f.languageHint,
	}, nil
}

func (f *fakeExtractor) Close() error { return nil }

// failingTranslator always errors; the pipeline must degrade.
type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, string, string) (string, error) {
	return "", errors.New("translator offline")
}

func (failingTranslator) Close() error { return nil }

// failingLedger refuses every put.
type failingLedger struct{}

func (failingLedger) Put(context.Context, string, []byte, int) (*ledger.Receipt, error) {
	return nil, ledger.ErrUnavailable
}

func (failingLedger) Get(context.Context, string) (*ledger.Entry, error) {
	return nil, ledger.ErrUnavailable
}

func (failingLedger) History(context.Context, string) ([][]byte, error) {
	return nil, ledger.ErrUnavailable
}

func (failingLedger) Verify(context.Context, string, []byte) (bool, error) {
	return false, ledger.ErrUnavailable
}

func (failingLedger) Status(context.Context) (*ledger.Status, error) {
	return &ledger.Status{Backend: "failing", Available: false}, nil
}

func (failingLedger) Close() error { return nil }

// memStore is an in-memory implementation of the persistence interfaces.
type memStore struct {
	mu         sync.Mutex
	properties map[string]*domain.Property
	records    []*domain.VerificationRecord
	details    map[string]*domain.VerificationDetail
	tampers    []*domain.TamperCheck
	audits     []*domain.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		properties: make(map[string]*domain.Property),
		details:    make(map[string]*domain.VerificationDetail),
	}
}

func (m *memStore) Upsert(_ context.Context, p *domain.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(p)
	return nil
}

func (m *memStore) upsertLocked(p *domain.Property) {
	if existing, ok := m.properties[p.PropertyID]; ok {
		existing.DocumentType = p.DocumentType
		existing.LastSeenOwner = p.LastSeenOwner
		existing.LastSeenSurvey = p.LastSeenSurvey
		return
	}
	cp := *p
	m.properties[p.PropertyID] = &cp
}

func (m *memStore) GetByID(_ context.Context, propertyID string) (*domain.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[propertyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (m *memStore) Search(_ context.Context, _ domain.PropertyFilter, _, _ int) ([]*domain.Property, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Property
	for _, p := range m.properties {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memStore) Delete(_ context.Context, propertyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.properties[propertyID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.properties, propertyID)

	var kept []*domain.VerificationRecord
	for _, rec := range m.records {
		if rec.PropertyID == propertyID {
			delete(m.details, rec.VerificationID)
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept

	var keptTampers []*domain.TamperCheck
	for _, check := range m.tampers {
		if check.PropertyID != propertyID {
			keptTampers = append(keptTampers, check)
		}
	}
	m.tampers = keptTampers
	return nil
}

func (m *memStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.properties)), nil
}

func (m *memStore) Create(_ context.Context, property *domain.Property, record *domain.VerificationRecord, detail *domain.VerificationDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(property)
	rc := *record
	dc := *detail
	m.records = append(m.records, &rc)
	m.details[record.VerificationID] = &dc
	return nil
}

func (m *memStore) recordByIDLocked(verificationID string) (*domain.VerificationRecord, bool) {
	for _, rec := range m.records {
		if rec.VerificationID == verificationID {
			return rec, true
		}
	}
	return nil, false
}

func (m *memStore) GetByIDRecord(_ context.Context, verificationID string) (*domain.VerificationRecord, *domain.VerificationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordByIDLocked(verificationID)
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	return rec, m.details[verificationID], nil
}

func (m *memStore) GetLatestByProperty(_ context.Context, propertyID string) (*domain.VerificationRecord, *domain.VerificationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].PropertyID == propertyID {
			rec := m.records[i]
			return rec, m.details[rec.VerificationID], nil
		}
	}
	return nil, nil, domain.ErrNotFound
}

func (m *memStore) ListByProperty(_ context.Context, propertyID string) ([]*domain.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.VerificationRecord
	for _, rec := range m.records {
		if rec.PropertyID == propertyID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) UpdateAnchor(_ context.Context, verificationID, anchorRef string, blockHeight int64, anchoredAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordByIDLocked(verificationID)
	if !ok {
		return domain.ErrNotFound
	}
	rec.AnchorReference = &anchorRef
	rec.AnchorBlockHeight = &blockHeight
	rec.AnchorTimestamp = &anchoredAt
	return nil
}

func (m *memStore) CountByRiskLevel(_ context.Context) (map[domain.RiskLevel]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.RiskLevel]int64{}
	for _, rec := range m.records {
		out[rec.RiskLevel]++
	}
	return out, nil
}

func (m *memStore) CreateTamper(_ context.Context, check *domain.TamperCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *check
	m.tampers = append(m.tampers, &cp)
	return nil
}

func (m *memStore) ListTampersByProperty(_ context.Context, propertyID string, _ int) ([]*domain.TamperCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TamperCheck
	for _, check := range m.tampers {
		if check.PropertyID == propertyID {
			out = append(out, check)
		}
	}
	return out, nil
}

func (m *memStore) CountByStatus(_ context.Context) (map[domain.TamperStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.TamperStatus]int64{}
	for _, check := range m.tampers {
		out[check.Status]++
	}
	return out, nil
}

func (m *memStore) Append(_ context.Context, entry *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.audits = append(m.audits, &cp)
	return nil
}

func (m *memStore) ListRecent(_ context.Context, limit int) ([]*domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.audits)
	if limit > n {
		limit = n
	}
	out := make([]*domain.AuditLog, limit)
	copy(out, m.audits[n-limit:])
	return out, nil
}

// hasAudit reports whether an entry with the operation, status and
// message substring exists.
func (m *memStore) hasAudit(op domain.AuditOperation, status domain.AuditStatus, substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.audits {
		if entry.Operation == op && entry.Status == status &&
			(substr == "" || strings.Contains(entry.Message, substr)) {
			return true
		}
	}
	return false
}

// verificationStore adapts memStore to domain.VerificationRepository.
type verificationStore struct{ *memStore }

func (v verificationStore) GetByID(ctx context.Context, verificationID string) (*domain.VerificationRecord, *domain.VerificationDetail, error) {
	return v.memStore.GetByIDRecord(ctx, verificationID)
}

func (v verificationStore) Count(_ context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return int64(len(v.records)), nil
}

// tamperStore adapts memStore to domain.TamperRepository.
type tamperStore struct{ *memStore }

func (t tamperStore) Create(ctx context.Context, check *domain.TamperCheck) error {
	return t.memStore.CreateTamper(ctx, check)
}

func (t tamperStore) ListByProperty(ctx context.Context, propertyID string, limit int) ([]*domain.TamperCheck, error) {
	return t.memStore.ListTampersByProperty(ctx, propertyID, limit)
}

func (t tamperStore) Count(_ context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.tampers)), nil
}
