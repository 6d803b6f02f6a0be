package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverDraftStore serves drafts from primary and switches to fallback while
// primary is failing. Primary is retried once per recoveryInterval.
type FailoverDraftStore struct {
	primary  domain.DraftStore
	fallback domain.DraftStore
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverDraftStore(primary, fallback domain.DraftStore, logger *zerolog.Logger) *FailoverDraftStore {
	return &FailoverDraftStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverDraftStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

// observe records the outcome of a primary call. Not-found and validation
// errors are answers, not outages.
func (r *FailoverDraftStore) observe(err error) bool {
	if err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		if r.isDown.Swap(false) {
			r.logger.Info().Msg("Primary draft store recovered")
		}
		return true
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary draft store failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
	return false
}

func (r *FailoverDraftStore) SaveDraft(ctx context.Context, v *models.Voucher, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SaveDraft(ctx, v, ttl)
		if r.observe(err) {
			return err
		}
	}
	return r.fallback.SaveDraft(ctx, v, ttl)
}

func (r *FailoverDraftStore) GetDraft(ctx context.Context, draftID string) (*models.Voucher, error) {
	if r.usePrimary() {
		v, err := r.primary.GetDraft(ctx, draftID)
		if r.observe(err) {
			if errors.Is(err, domain.ErrNotFound) {
				// drafts written during an outage live in the fallback
				if fv, ferr := r.fallback.GetDraft(ctx, draftID); ferr == nil {
					return fv, nil
				}
			}
			return v, err
		}
	}
	return r.fallback.GetDraft(ctx, draftID)
}

func (r *FailoverDraftStore) DeleteDraft(ctx context.Context, draftID string) error {
	ferr := r.fallback.DeleteDraft(ctx, draftID)
	if r.usePrimary() {
		err := r.primary.DeleteDraft(ctx, draftID)
		if r.observe(err) {
			return err
		}
	}
	return ferr
}
