package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTodayTruncatesToUTCMidnight(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	c := NewFakeClock(time.Date(2024, 3, 1, 2, 30, 0, 0, jakarta))

	// 02:30 at UTC+7 is still the previous day in UTC
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), Today(c))

	c.Advance(6 * time.Hour)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Today(c))

	c.Set(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), Today(c))
}
