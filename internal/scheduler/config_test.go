package scheduler

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	v := validator.New()

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate(v))
	})

	t.Run("zero hourly cap rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxNotificationsPerHour = 0
		assert.Error(t, cfg.Validate(v))
	})

	t.Run("malformed quiet hours rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.QuietHoursStart = "25:99"
		assert.Error(t, cfg.Validate(v))
	})

	t.Run("midnight-wrapping quiet hours are valid", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.QuietHoursStart = "23:00"
		cfg.QuietHoursEnd = "06:30"
		assert.NoError(t, cfg.Validate(v))
	})
}

func TestConfigPatchApply(t *testing.T) {
	base := DefaultConfig()

	t.Run("empty patch keeps everything", func(t *testing.T) {
		assert.Equal(t, base, ConfigPatch{}.Apply(base))
	})

	t.Run("set fields replace, unset fields survive", func(t *testing.T) {
		maxPerHour := 10
		quietStart := "23:30"
		adaptive := false

		merged := ConfigPatch{
			AdaptiveEnabled:         &adaptive,
			MaxNotificationsPerHour: &maxPerHour,
			QuietHoursStart:         &quietStart,
		}.Apply(base)

		assert.False(t, merged.AdaptiveEnabled)
		assert.Equal(t, 10, merged.MaxNotificationsPerHour)
		assert.Equal(t, "23:30", merged.QuietHoursStart)
		assert.Equal(t, base.QuietHoursEnd, merged.QuietHoursEnd)
		assert.Equal(t, base.RespectDoNotDisturb, merged.RespectDoNotDisturb)
	})
}

func TestQuietWindowContains(t *testing.T) {
	wrap := quietWindow{start: 22 * 60, end: 7 * 60} // 22:00-07:00
	day := quietWindow{start: 13 * 60, end: 14 * 60} // 13:00-14:00

	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
	}

	assert.True(t, wrap.contains(at(23, 0)))
	assert.True(t, wrap.contains(at(2, 30)))
	assert.True(t, wrap.contains(at(6, 59)))
	assert.False(t, wrap.contains(at(7, 0)))
	assert.False(t, wrap.contains(at(12, 0)))
	assert.True(t, wrap.contains(at(22, 0)))

	assert.True(t, day.contains(at(13, 30)))
	assert.False(t, day.contains(at(14, 0)))
	assert.False(t, day.contains(at(12, 59)))

	empty := quietWindow{start: 300, end: 300}
	assert.False(t, empty.contains(at(5, 0)))
}

func TestQuietWindowEndAfter(t *testing.T) {
	wrap := quietWindow{start: 22 * 60, end: 7 * 60}

	// Before midnight the window ends tomorrow morning.
	late := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	assert.True(t, wrap.endAfter(late).Equal(time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC)))

	// After midnight it ends the same morning.
	early := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	assert.True(t, wrap.endAfter(early).Equal(time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)))
}

func TestQuietWindowFromConfig(t *testing.T) {
	w := quietWindowFromConfig(DefaultConfig())
	require.Equal(t, 22*60, w.start)
	require.Equal(t, 7*60, w.end)

	broken := DefaultConfig()
	broken.QuietHoursEnd = "not-a-time"
	assert.Equal(t, quietWindow{}, quietWindowFromConfig(broken))
}
