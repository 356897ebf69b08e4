package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
)

// MemoryAuditRepository 内存审计日志（只追加）
type MemoryAuditRepository struct {
	mu       sync.Mutex
	entries  []*domain.AuditEntry
	byChange map[string]struct{}
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{byChange: map[string]struct{}{}}
}

var _ AuditRepository = (*MemoryAuditRepository)(nil)

func (r *MemoryAuditRepository) AppendAuditEntry(_ context.Context, entry *domain.AuditEntry) error {
	if entry == nil || entry.ChangeID == "" {
		return fmt.Errorf("%w: change_id is required", domain.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byChange[entry.ChangeID]; ok {
		return nil
	}
	cp := *entry
	r.entries = append(r.entries, &cp)
	r.byChange[entry.ChangeID] = struct{}{}
	return nil
}

// Entries 按写入顺序返回审计记录副本
func (r *MemoryAuditRepository) Entries() []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}
