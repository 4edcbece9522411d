package patterns

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wakewise/notification-engine/internal/devicectx"
)

func newTestStore() *Store {
	return NewStore(zap.NewNop())
}

func TestRecordAndLookup(t *testing.T) {
	s := newTestStore()

	s.Record(Observation{
		Type:            "alarm",
		TimeOfDay:       devicectx.TimeOfDayMorning,
		Response:        ResponseDismissed,
		ResponseLatency: 40 * time.Second,
		DeliveryDelay:   2 * time.Minute,
	})

	p, ok := s.Lookup("alarm", devicectx.TimeOfDayMorning)
	require.True(t, ok)
	assert.EqualValues(t, 1, p.Samples)
	assert.Equal(t, 40*time.Second, p.AvgResponseLatency)
	assert.Equal(t, 2*time.Minute, p.AvgDeliveryDelay)
	assert.Equal(t, 1.0, p.DismissRate)
	assert.Zero(t, p.SnoozeRate)
	assert.Zero(t, p.IgnoreRate)
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestLookupMissingBucket(t *testing.T) {
	s := newTestStore()

	_, ok := s.Lookup("alarm", devicectx.TimeOfDayNight)
	assert.False(t, ok)

	// A different time-of-day bucket for the same type is still distinct.
	s.Record(Observation{Type: "alarm", TimeOfDay: devicectx.TimeOfDayMorning, Response: ResponseDismissed})
	_, ok = s.Lookup("alarm", devicectx.TimeOfDayNight)
	assert.False(t, ok)
}

func TestRunningMeansMatchBatchMeans(t *testing.T) {
	// The incremental update must agree with the arithmetic mean over any
	// observation sequence.
	s := newTestStore()
	rng := rand.New(rand.NewSource(42))

	const samples = 500
	var latencySum, delaySum time.Duration
	var dismissed int

	for i := 0; i < samples; i++ {
		latency := time.Duration(rng.Intn(600)) * time.Second
		delay := time.Duration(rng.Intn(45)) * time.Minute
		response := ResponseIgnored
		if rng.Intn(2) == 0 {
			response = ResponseDismissed
			dismissed++
		}

		latencySum += latency
		delaySum += delay
		s.Record(Observation{
			Type:            "reminder",
			TimeOfDay:       devicectx.TimeOfDayEvening,
			Response:        response,
			ResponseLatency: latency,
			DeliveryDelay:   delay,
		})
	}

	p, ok := s.Lookup("reminder", devicectx.TimeOfDayEvening)
	require.True(t, ok)
	assert.EqualValues(t, samples, p.Samples)

	wantLatency := latencySum / samples
	wantDelay := delaySum / samples
	assert.InDelta(t, float64(wantLatency), float64(p.AvgResponseLatency), float64(time.Second))
	assert.InDelta(t, float64(wantDelay), float64(p.AvgDeliveryDelay), float64(time.Second))
	assert.InDelta(t, float64(dismissed)/samples, p.DismissRate, 0.001)
}

func TestResponseRatesSumToOne(t *testing.T) {
	s := newTestStore()
	responses := []ResponseKind{
		ResponseDismissed, ResponseSnoozed, ResponseIgnored,
		ResponseDismissed, ResponseDismissed, ResponseSnoozed, ResponseIgnored,
	}

	for _, r := range responses {
		s.Record(Observation{Type: "alarm", TimeOfDay: devicectx.TimeOfDayMorning, Response: r})
	}

	p, ok := s.Lookup("alarm", devicectx.TimeOfDayMorning)
	require.True(t, ok)
	sum := p.DismissRate + p.SnoozeRate + p.IgnoreRate
	assert.True(t, math.Abs(sum-1.0) < 1e-9, "rates sum to %f", sum)
	assert.InDelta(t, 3.0/7.0, p.DismissRate, 1e-9)
	assert.InDelta(t, 2.0/7.0, p.SnoozeRate, 1e-9)
	assert.InDelta(t, 2.0/7.0, p.IgnoreRate, 1e-9)
}

func TestSnapshotAndRestore(t *testing.T) {
	s := newTestStore()
	s.Record(Observation{Type: "alarm", TimeOfDay: devicectx.TimeOfDayMorning, Response: ResponseDismissed})
	s.Record(Observation{Type: "insight", TimeOfDay: devicectx.TimeOfDayEvening, Response: ResponseIgnored})

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Contains(t, snap, "alarm:morning")
	assert.Contains(t, snap, "insight:evening")

	// Round-trip through Restore rebuilds an equivalent store.
	restored := newTestStore()
	restored.Restore(Key{Type: "alarm", TimeOfDay: devicectx.TimeOfDayMorning}, snap["alarm:morning"])
	restored.Restore(Key{Type: "insight", TimeOfDay: devicectx.TimeOfDayEvening}, snap["insight:evening"])

	assert.Equal(t, 2, restored.Len())
	p, ok := restored.Lookup("alarm", devicectx.TimeOfDayMorning)
	require.True(t, ok)
	assert.Equal(t, snap["alarm:morning"], p)
}

func TestLookupReturnsCopy(t *testing.T) {
	s := newTestStore()
	s.Record(Observation{Type: "alarm", TimeOfDay: devicectx.TimeOfDayMorning, Response: ResponseDismissed})

	p, _ := s.Lookup("alarm", devicectx.TimeOfDayMorning)
	p.Samples = 999

	again, _ := s.Lookup("alarm", devicectx.TimeOfDayMorning)
	assert.EqualValues(t, 1, again.Samples)
}

func TestKeyString(t *testing.T) {
	k := Key{Type: "optimization", TimeOfDay: devicectx.TimeOfDayAfternoon}
	assert.Equal(t, "optimization:afternoon", k.String())
}
