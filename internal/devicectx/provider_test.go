package devicectx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSource struct {
	mu       sync.Mutex
	snapshot NotificationContext
	err      error
	samples  int
}

func (s *stubSource) Sample(ctx context.Context) (NotificationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples++
	if s.err != nil {
		return NotificationContext{}, s.err
	}
	return s.snapshot, nil
}

func (s *stubSource) set(snapshot NotificationContext, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	s.err = err
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		hour int
		want TimeOfDay
	}{
		{6, TimeOfDayMorning},
		{11, TimeOfDayMorning},
		{12, TimeOfDayAfternoon},
		{17, TimeOfDayAfternoon},
		{18, TimeOfDayEvening},
		{21, TimeOfDayEvening},
		{22, TimeOfDayNight},
		{23, TimeOfDayNight},
		{0, TimeOfDayNight},
		{5, TimeOfDayNight},
	}

	for _, tt := range tests {
		at := time.Date(2026, 3, 10, tt.hour, 30, 0, 0, time.UTC)
		assert.Equal(t, tt.want, BucketFor(at), "hour %d", tt.hour)
	}
}

func TestProviderUsesSourceSnapshot(t *testing.T) {
	source := &stubSource{snapshot: NotificationContext{
		Activity:     ActivitySleeping,
		BatteryLevel: 42,
		DoNotDisturb: true,
		Location:     LocationHome,
		Connectivity: ConnectivityOnline,
	}}

	p := NewProvider(source, time.Minute, zap.NewNop())

	got := p.Current()
	assert.Equal(t, ActivitySleeping, got.Activity)
	assert.Equal(t, 42, got.BatteryLevel)
	assert.True(t, got.DoNotDisturb)
	assert.Equal(t, LocationHome, got.Location)
	assert.Equal(t, BucketFor(time.Now()), got.TimeOfDay, "time of day is recomputed per read")
	assert.False(t, got.CapturedAt.IsZero())
}

func TestProviderKeepsLastKnownOnFailure(t *testing.T) {
	source := &stubSource{err: errors.New("telemetry bridge down")}
	p := NewProvider(source, time.Minute, zap.NewNop())

	// The initial sample failed, so the conservative default applies.
	got := p.Current()
	assert.Equal(t, ActivityActive, got.Activity)
	assert.Equal(t, 100, got.BatteryLevel)
	assert.False(t, got.DoNotDisturb)

	// A successful sample replaces the default.
	source.set(NotificationContext{Activity: ActivityDriving, BatteryLevel: 30}, nil)
	p.refresh(context.Background())
	assert.Equal(t, ActivityDriving, p.Current().Activity)

	// A later failure keeps the last good snapshot.
	source.set(NotificationContext{}, errors.New("bridge down again"))
	p.refresh(context.Background())
	got = p.Current()
	assert.Equal(t, ActivityDriving, got.Activity)
	assert.Equal(t, 30, got.BatteryLevel)
}

func TestProviderFillsMissingFields(t *testing.T) {
	source := &stubSource{snapshot: NotificationContext{Activity: ActivityIdle}}
	p := NewProvider(source, time.Minute, zap.NewNop())

	got := p.Current()
	assert.Equal(t, LocationUnknown, got.Location, "missing location defaults to unknown")
	assert.NotEmpty(t, got.TimeOfDay)
}

func TestProviderNotifyTriggersRefresh(t *testing.T) {
	source := &stubSource{snapshot: NotificationContext{Activity: ActivityActive}}
	p := NewProvider(source, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	source.set(NotificationContext{Activity: ActivityMeeting}, nil)
	p.Notify()

	require.Eventually(t, func() bool {
		return p.Current().Activity == ActivityMeeting
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDefaultContext(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	got := DefaultContext(now)

	assert.Equal(t, ActivityActive, got.Activity)
	assert.Equal(t, 100, got.BatteryLevel)
	assert.Equal(t, LocationUnknown, got.Location)
	assert.Equal(t, TimeOfDayMorning, got.TimeOfDay)
	assert.Equal(t, ConnectivityOnline, got.Connectivity)
	assert.True(t, got.CapturedAt.Equal(now))
}
