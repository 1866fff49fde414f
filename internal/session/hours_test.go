package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/dialerd/internal/config"
)

func TestHoursWithin(t *testing.T) {
	h := NewHours(config.HoursConfig{Timezone: "America/New_York", Open: 8, Close: 18})
	ny, _ := time.LoadLocation("America/New_York")

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday 8am open boundary", time.Date(2026, 8, 24, 8, 0, 0, 0, ny), true},
		{"monday 5:59pm", time.Date(2026, 8, 24, 17, 59, 0, 0, ny), true},
		{"monday 6pm close boundary", time.Date(2026, 8, 24, 18, 0, 0, 0, ny), false},
		{"monday 7:59am", time.Date(2026, 8, 24, 7, 59, 0, 0, ny), false},
		{"saturday noon", time.Date(2026, 8, 29, 12, 0, 0, 0, ny), false},
		{"sunday noon", time.Date(2026, 8, 30, 12, 0, 0, 0, ny), false},
		// 2pm UTC is 10am in New York during DST.
		{"utc time converted to local", time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Within(tt.at))
		})
	}
}

func TestHoursWithinWeekendsEnabled(t *testing.T) {
	h := NewHours(config.HoursConfig{Timezone: "UTC", Open: 8, Close: 18, Weekends: true})

	assert.True(t, h.Within(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)))  // Saturday
	assert.False(t, h.Within(time.Date(2026, 8, 29, 19, 0, 0, 0, time.UTC))) // Saturday after close
}

func TestNextOpenSkipsWeekend(t *testing.T) {
	h := NewHours(config.HoursConfig{Timezone: "UTC", Open: 8, Close: 18})

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{
			"thursday rolls to friday",
			time.Date(2026, 8, 27, 15, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		},
		{
			"friday rolls past weekend to monday",
			time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
		},
		{
			"saturday rolls to monday",
			time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.NextOpen(tt.after, 10))
		})
	}
}

func TestNextOpenWeekendsEnabled(t *testing.T) {
	h := NewHours(config.HoursConfig{Timezone: "UTC", Open: 8, Close: 18, Weekends: true})

	got := h.NextOpen(time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC), 10) // Friday
	assert.Equal(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), got)  // Saturday
}
