package database

import (
	"context"
	"sync"
	"time"

	"zonebot/internal/model"
)

// Memory is an in-process store with the same surface as DB. It backs the
// process when the database is unreachable at startup and the tests.
type Memory struct {
	mu        sync.Mutex
	approvals []int64
	records   map[int64][]model.Record
	audit     []model.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{records: make(map[int64][]model.Record)}
}

func (m *Memory) LoadApprovals(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.approvals...), nil
}

func (m *Memory) SaveApprovals(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals = append([]int64(nil), ids...)
	return nil
}

func (m *Memory) LoadRecords(ctx context.Context) (map[int64][]model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64][]model.Record, len(m.records))
	for id, recs := range m.records {
		out[id] = append([]model.Record(nil), recs...)
	}
	return out, nil
}

func (m *Memory) SaveUserRecords(ctx context.Context, userID int64, records []model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(records) == 0 {
		delete(m.records, userID)
		return nil
	}
	m.records[userID] = append([]model.Record(nil), records...)
	return nil
}

func (m *Memory) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.audit) + 1)
	entry.CreatedAt = time.Now()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []model.AuditEntry
	for i := len(m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, m.audit[i])
	}
	return entries, nil
}
