package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeighType(t *testing.T) {
	tests := []struct {
		in   string
		want WeighType
		ok   bool
	}{
		{"BUY", WeighTypeBuy, true},
		{"buy", WeighTypeBuy, true},
		{" Sell ", WeighTypeSell, true},
		{"SELL", WeighTypeSell, true},
		{"", "", false},
		{"TRANSFER", "", false},
		{"B", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseWeighType(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestDateKey_ReportingTimezone(t *testing.T) {
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)

	// 23:50 UTC is already the next calendar day in UTC+7.
	late := time.Date(2024, 3, 1, 23, 50, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-02", DateKey(late, bangkok))

	// 16:59 UTC is still 23:59 the same day in UTC+7.
	cusp := time.Date(2024, 3, 1, 16, 59, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01", DateKey(cusp, bangkok))

	// 17:00 UTC rolls over to midnight.
	rollover := time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-02", DateKey(rollover, bangkok))
}

func TestDateKey_SameDaySameKey(t *testing.T) {
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)

	morning := time.Date(2024, 6, 15, 8, 0, 0, 0, bangkok)
	evening := time.Date(2024, 6, 15, 22, 30, 0, 0, bangkok)
	assert.Equal(t, DateKey(morning, bangkok), DateKey(evening, bangkok))
}
