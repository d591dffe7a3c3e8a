// Package memstore holds the in-memory verification registry. It is the
// single shared mutable resource of the service: registration, inbound OTP
// matching and the periodic expiry sweep all contend for it.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-otp-relay/internal/domain"
)

// VerificationStore indexes verification records by request id and, while
// they are PENDING, by phone. A record is PENDING if and only if its id is
// present in the phone index; Complete removes it from the phone index but
// keeps it under the request-id index for later lookup.
//
// Terminal records older than the retention window are evicted during
// sweeps so the request-id index stays bounded. retention <= 0 disables
// eviction.
type VerificationStore struct {
	mu          sync.RWMutex
	byRequestID map[string]domain.VerificationRecord
	byPhone     map[string]map[string]struct{}
	retention   time.Duration
	nowFunc     func() time.Time
}

// NewVerificationStore returns an empty store. retention bounds how long
// completed records stay queryable by request id.
func NewVerificationStore(retention time.Duration) *VerificationStore {
	return &VerificationStore{
		byRequestID: make(map[string]domain.VerificationRecord),
		byPhone:     make(map[string]map[string]struct{}),
		retention:   retention,
		nowFunc:     time.Now,
	}
}

// Upsert inserts or replaces the record under its request id and (re)adds
// the id to the phone bucket. The caller guarantees a well-formed PENDING
// record; no validation happens here. Re-registering an id under a new
// phone drops the stale phone index entry.
func (s *VerificationStore) Upsert(ctx context.Context, rec domain.VerificationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byRequestID[rec.RequestID]; ok && prev.Phone != rec.Phone {
		s.unindexPhoneLocked(prev.Phone, prev.RequestID)
	}

	s.byRequestID[rec.RequestID] = rec
	ids, ok := s.byPhone[rec.Phone]
	if !ok {
		ids = make(map[string]struct{})
		s.byPhone[rec.Phone] = ids
	}
	ids[rec.RequestID] = struct{}{}
}

// PendingByPhone returns the PENDING records for phone that are still
// eligible for matching (expiry not yet passed), ordered by CreatedAt
// ascending (oldest first, ties broken by request id for a stable order).
// Records past their expiry stay in the store for the sweep to close out.
// The returned slice is a snapshot; records are values and never mutate
// under the caller.
func (s *VerificationStore) PendingByPhone(ctx context.Context, phone string) []domain.VerificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.byPhone[phone]
	if !ok {
		return nil
	}
	now := s.nowFunc()
	records := make([]domain.VerificationRecord, 0, len(ids))
	for id := range ids {
		if rec, ok := s.byRequestID[id]; ok && rec.Status == domain.StatusPending && !rec.ExpiresAt.Before(now) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].RequestID < records[j].RequestID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records
}

// Complete transitions the record from PENDING to the given terminal status
// and removes it from the phone index. It is the single serialization point
// between the matching path and the expiry sweep: if the record is no
// longer PENDING the call is a no-op and the second return is false, so the
// loser of a double-completion race observes the no-op instead of
// overwriting a terminal state.
func (s *VerificationStore) Complete(ctx context.Context, requestID string, status domain.VerificationStatus, reason, otpReceived *string) (domain.VerificationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeLocked(requestID, status, reason, otpReceived)
}

func (s *VerificationStore) completeLocked(requestID string, status domain.VerificationStatus, reason, otpReceived *string) (domain.VerificationRecord, bool) {
	rec, ok := s.byRequestID[requestID]
	if !ok || rec.Status != domain.StatusPending {
		return rec, false
	}

	updated := rec.WithCompletion(status, reason, otpReceived, s.nowFunc())
	s.byRequestID[requestID] = updated
	s.unindexPhoneLocked(rec.Phone, requestID)
	return updated, true
}

// SweepExpired completes every PENDING record whose expiry has passed as
// EXPIRED/OTP_EXPIRED and returns the newly expired records for downstream
// notification. Terminal records past the retention window are evicted in
// the same pass.
func (s *VerificationStore) SweepExpired(ctx context.Context, now time.Time) []domain.VerificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []domain.VerificationRecord
	reason := domain.ReasonOTPExpired
	for id, rec := range s.byRequestID {
		switch {
		case rec.Status == domain.StatusPending && rec.ExpiresAt.Before(now):
			if updated, ok := s.completeLocked(id, domain.StatusExpired, &reason, nil); ok {
				expired = append(expired, updated)
			}
		case rec.Status.Terminal() && s.retention > 0 && now.Sub(rec.UpdatedAt) > s.retention:
			delete(s.byRequestID, id)
		}
	}
	return expired
}

// GetByRequestID returns the record registered under id, pending or
// completed, as long as it has not been evicted.
func (s *VerificationStore) GetByRequestID(ctx context.Context, requestID string) (domain.VerificationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byRequestID[requestID]
	return rec, ok
}

// unindexPhoneLocked drops requestID from the phone bucket, removing the
// bucket entirely once empty. Caller holds the write lock.
func (s *VerificationStore) unindexPhoneLocked(phone, requestID string) {
	ids, ok := s.byPhone[phone]
	if !ok {
		return
	}
	delete(ids, requestID)
	if len(ids) == 0 {
		delete(s.byPhone, phone)
	}
}
