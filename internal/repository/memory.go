package repository

import (
	"context"
	"sync"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

type memoryDraft struct {
	voucher   models.Voucher
	expiresAt time.Time
}

// MemoryDraftStore keeps drafts in process. Used when Redis is not configured
// and as the failover target.
type MemoryDraftStore struct {
	drafts sync.Map
	now    func() time.Time
}

func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{now: time.Now}
}

func (s *MemoryDraftStore) SaveDraft(ctx context.Context, v *models.Voucher, ttl time.Duration) error {
	if v == nil || v.DraftID == "" {
		return domain.Invalid("draft_id", "draft id is required")
	}
	entry := &memoryDraft{voucher: cloneVoucher(v)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.drafts.Store(v.DraftID, entry)
	return nil
}

func (s *MemoryDraftStore) GetDraft(ctx context.Context, draftID string) (*models.Voucher, error) {
	val, ok := s.drafts.Load(draftID)
	if !ok {
		return nil, domain.NotFound("draft", draftID)
	}
	entry := val.(*memoryDraft)
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.drafts.Delete(draftID)
		return nil, domain.NotFound("draft", draftID)
	}
	v := cloneVoucher(&entry.voucher)
	return &v, nil
}

func (s *MemoryDraftStore) DeleteDraft(ctx context.Context, draftID string) error {
	s.drafts.Delete(draftID)
	return nil
}

func cloneVoucher(v *models.Voucher) models.Voucher {
	out := *v
	out.Items = append([]models.LineItem(nil), v.Items...)
	return out
}
