package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-otp-relay/internal/domain"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(retention time.Duration, now time.Time) *VerificationStore {
	s := NewVerificationStore(retention)
	s.nowFunc = func() time.Time { return now }
	return s
}

func pendingRecord(id, phone string, createdAt, expiresAt time.Time) domain.VerificationRecord {
	return domain.VerificationRecord{
		RequestID:   id,
		Origin:      "https://example.com",
		Phone:       phone,
		ExpectedOTP: "AB12CD",
		ExpiresAt:   expiresAt,
		CallbackURL: "https://example.com/cb",
		Status:      domain.StatusPending,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestUpsert_FreshRecordIsPendingAndIndexed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base, base.Add(time.Minute)))

	got, ok := s.GetByRequestID(ctx, "r1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusPending, got.Status)

	pending := s.PendingByPhone(ctx, "+15551234567")
	require.Len(t, pending, 1)
	assert.Equal(t, "r1", pending[0].RequestID)
}

func TestUpsert_SameIDOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base, base.Add(time.Minute)))
	replacement := pendingRecord("r1", "+15551234567", base.Add(time.Second), base.Add(2*time.Minute))
	replacement.ExpectedOTP = "ZZ99ZZ"
	s.Upsert(ctx, replacement)

	pending := s.PendingByPhone(ctx, "+15551234567")
	require.Len(t, pending, 1)
	assert.Equal(t, "ZZ99ZZ", pending[0].ExpectedOTP)
}

func TestUpsert_PhoneChangeDropsStaleIndexEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base, base.Add(time.Minute)))
	s.Upsert(ctx, pendingRecord("r1", "+4917112345", base, base.Add(time.Minute)))

	assert.Empty(t, s.PendingByPhone(ctx, "+15551234567"))
	require.Len(t, s.PendingByPhone(ctx, "+4917112345"), 1)
}

func TestPendingByPhone_OrderedByCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("r2", "+15551234567", base.Add(time.Second), base.Add(time.Minute)))
	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base, base.Add(time.Minute)))
	s.Upsert(ctx, pendingRecord("r3", "+15551234567", base.Add(2*time.Second), base.Add(time.Minute)))

	pending := s.PendingByPhone(ctx, "+15551234567")
	require.Len(t, pending, 3)
	assert.Equal(t, "r1", pending[0].RequestID)
	assert.Equal(t, "r2", pending[1].RequestID)
	assert.Equal(t, "r3", pending[2].RequestID)
}

func TestPendingByPhone_ExcludesExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base.Add(-2*time.Minute), base.Add(-time.Second)))
	s.Upsert(ctx, pendingRecord("r2", "+15551234567", base.Add(-time.Minute), base.Add(time.Minute)))

	pending := s.PendingByPhone(ctx, "+15551234567")
	require.Len(t, pending, 1)
	assert.Equal(t, "r2", pending[0].RequestID)
}

func TestPendingByPhone_UnknownPhone(t *testing.T) {
	s := newTestStore(0, base)
	assert.Empty(t, s.PendingByPhone(context.Background(), "+4900000"))
}

func TestComplete_TransitionsAndUnindexes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base, base.Add(time.Minute)))

	otp := "AB12CD"
	updated, ok := s.Complete(ctx, "r1", domain.StatusSuccess, nil, &otp)
	require.True(t, ok)
	assert.Equal(t, domain.StatusSuccess, updated.Status)
	assert.Nil(t, updated.Reason)
	require.NotNil(t, updated.OTPReceived)
	assert.Equal(t, "AB12CD", *updated.OTPReceived)
	assert.Equal(t, base, updated.UpdatedAt)

	// Gone from the phone index, still under the request-id index.
	assert.Empty(t, s.PendingByPhone(ctx, "+15551234567"))
	got, ok := s.GetByRequestID(ctx, "r1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSuccess, got.Status)

	// Empty bucket dropped entirely.
	s.mu.RLock()
	_, bucketExists := s.byPhone["+15551234567"]
	s.mu.RUnlock()
	assert.False(t, bucketExists)
}

func TestComplete_NoOpWhenTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base, base.Add(time.Minute)))
	_, ok := s.Complete(ctx, "r1", domain.StatusSuccess, nil, nil)
	require.True(t, ok)

	reason := domain.ReasonOTPExpired
	current, ok := s.Complete(ctx, "r1", domain.StatusExpired, &reason, nil)
	assert.False(t, ok)
	assert.Equal(t, domain.StatusSuccess, current.Status, "losing completion must not overwrite")
}

func TestComplete_UnknownID(t *testing.T) {
	s := newTestStore(0, base)
	_, ok := s.Complete(context.Background(), "missing", domain.StatusSuccess, nil, nil)
	assert.False(t, ok)
}

func TestComplete_RacingCallersYieldOneTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)
	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base, base.Add(time.Minute)))

	const callers = 16
	var wg sync.WaitGroup
	wins := make(chan domain.VerificationStatus, callers)
	for i := 0; i < callers; i++ {
		status := domain.StatusSuccess
		if i%2 == 1 {
			status = domain.StatusExpired
		}
		wg.Add(1)
		go func(st domain.VerificationStatus) {
			defer wg.Done()
			if _, ok := s.Complete(ctx, "r1", st, nil, nil); ok {
				wins <- st
			}
		}(status)
	}
	wg.Wait()
	close(wins)

	var winners []domain.VerificationStatus
	for st := range wins {
		winners = append(winners, st)
	}
	require.Len(t, winners, 1, "exactly one completion must win")

	got, _ := s.GetByRequestID(ctx, "r1")
	assert.Equal(t, winners[0], got.Status)
}

func TestSweepExpired_CompletesOverduePending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("late", "+15551234567", base.Add(-2*time.Minute), base.Add(-time.Second)))
	s.Upsert(ctx, pendingRecord("fresh", "+15551234567", base, base.Add(time.Minute)))

	expired := s.SweepExpired(ctx, base)
	require.Len(t, expired, 1)
	assert.Equal(t, "late", expired[0].RequestID)
	assert.Equal(t, domain.StatusExpired, expired[0].Status)
	require.NotNil(t, expired[0].Reason)
	assert.Equal(t, domain.ReasonOTPExpired, *expired[0].Reason)
	assert.Nil(t, expired[0].OTPReceived)

	pending := s.PendingByPhone(ctx, "+15551234567")
	require.Len(t, pending, 1)
	assert.Equal(t, "fresh", pending[0].RequestID)
}

func TestSweepExpired_EmptyStore(t *testing.T) {
	s := newTestStore(0, base)
	assert.Empty(t, s.SweepExpired(context.Background(), base))
}

func TestSweepExpired_SkipsTerminalRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base.Add(-2*time.Minute), base.Add(-time.Second)))
	_, ok := s.Complete(ctx, "r1", domain.StatusFailed, nil, nil)
	require.True(t, ok)

	assert.Empty(t, s.SweepExpired(ctx, base))
	got, _ := s.GetByRequestID(ctx, "r1")
	assert.Equal(t, domain.StatusFailed, got.Status)
}

func TestSweepExpired_EvictsTerminalPastRetention(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(time.Hour, base)

	s.Upsert(ctx, pendingRecord("old", "+15551234567", base.Add(-3*time.Hour), base.Add(-2*time.Hour)))
	_, ok := s.Complete(ctx, "old", domain.StatusSuccess, nil, nil)
	require.True(t, ok)

	// Completed at base; still inside the retention window.
	s.SweepExpired(ctx, base.Add(30*time.Minute))
	_, found := s.GetByRequestID(ctx, "old")
	assert.True(t, found)

	// Past the window: evicted.
	s.SweepExpired(ctx, base.Add(2*time.Hour))
	_, found = s.GetByRequestID(ctx, "old")
	assert.False(t, found)
}

func TestSweepExpired_ZeroRetentionKeepsForever(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base, base.Add(time.Minute)))
	_, ok := s.Complete(ctx, "r1", domain.StatusSuccess, nil, nil)
	require.True(t, ok)

	s.SweepExpired(ctx, base.Add(1000*time.Hour))
	_, found := s.GetByRequestID(ctx, "r1")
	assert.True(t, found)
}

func TestMultiplePendingPerPhone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(0, base)

	s.Upsert(ctx, pendingRecord("r1", "+15551234567", base, base.Add(time.Minute)))
	s.Upsert(ctx, pendingRecord("r2", "+15551234567", base.Add(time.Second), base.Add(time.Minute)))

	_, ok := s.Complete(ctx, "r1", domain.StatusSuccess, nil, nil)
	require.True(t, ok)

	pending := s.PendingByPhone(ctx, "+15551234567")
	require.Len(t, pending, 1)
	assert.Equal(t, "r2", pending[0].RequestID)
}
