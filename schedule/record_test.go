package schedule_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-engine/generic"
	"github.com/warp/care-engine/schedule"
)

func TestRecord_RoundTrip(t *testing.T) {
	// GIVEN: A custom-interval package in a local timezone with exceptions
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	p := weeklyPackage()
	p.Frequency = schedule.Custom{IntervalDays: 3}
	p.Location = ny
	p.Time = generic.TimeOfDay{Hour: 8, Minute: 30, Duration: 45 * time.Minute}
	end := jan(31)
	p.EndDate = &end
	moved := time.Date(2024, time.January, 5, 10, 0, 0, 0, ny)
	require.NoError(t, p.AddException(jan(7), schedule.ActionSkip, nil))
	require.NoError(t, p.AddException(jan(4), schedule.ActionReschedule, &moved))

	// WHEN: Converting to the wire record, through JSON, and back
	rec := schedule.ToRecord(p)
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	var decoded schedule.Record
	require.NoError(t, json.Unmarshal(raw, &decoded))
	back, err := schedule.FromRecord(decoded)
	require.NoError(t, err)

	// THEN: Wire fields are normalized and occurrences are unchanged
	assert.Equal(t, "custom", rec.Frequency)
	assert.Equal(t, 3, rec.IntervalDays)
	assert.Equal(t, "08:30", rec.StartTime)
	assert.Equal(t, 45, rec.DurationMinutes)
	assert.Equal(t, "America/New_York", rec.Timezone)
	require.Len(t, rec.Exceptions, 2)
	assert.Equal(t, jan(4), rec.Exceptions[0].Date)
	assert.Equal(t, jan(7), rec.Exceptions[1].Date)

	want, err := schedule.Occurrences(p, jan(1), jan(31))
	require.NoError(t, err)
	got, err := schedule.Occurrences(back, jan(1), jan(31))
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Start.Equal(got[i].Start), "occurrence %d", i)
		assert.Equal(t, want[i].OriginalDate, got[i].OriginalDate)
	}
}

func TestFromRecord_Rejects(t *testing.T) {
	valid := func() schedule.Record {
		return schedule.Record{
			Frequency:       "weekly",
			StartDate:       jan(1),
			StartTime:       "09:00",
			DurationMinutes: 60,
		}
	}

	tests := []struct {
		name   string
		mutate func(*schedule.Record)
	}{
		{"unknown frequency", func(r *schedule.Record) { r.Frequency = "hourly" }},
		{"custom without interval", func(r *schedule.Record) { r.Frequency = "custom" }},
		{"bad start time", func(r *schedule.Record) { r.StartTime = "9am" }},
		{"zero duration", func(r *schedule.Record) { r.DurationMinutes = 0 }},
		{"missing start date", func(r *schedule.Record) { r.StartDate = generic.Date{} }},
		{"end before start", func(r *schedule.Record) {
			d := generic.NewDate(2023, time.December, 1)
			r.EndDate = &d
		}},
		{"unknown timezone", func(r *schedule.Record) { r.Timezone = "Mars/Olympus" }},
		{"unknown status", func(r *schedule.Record) { r.Status = "archived" }},
		{"unknown exception action", func(r *schedule.Record) {
			r.Exceptions = []schedule.ExceptionRecord{{Date: jan(8), Action: "postpone"}}
		}},
		{"reschedule without time", func(r *schedule.Record) {
			r.Exceptions = []schedule.ExceptionRecord{{Date: jan(8), Action: "reschedule"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)

			_, err := schedule.FromRecord(r)

			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}
}

func TestFromRecord_DefaultsToActiveUTC(t *testing.T) {
	p, err := schedule.FromRecord(schedule.Record{
		Frequency:       "daily",
		StartDate:       jan(1),
		StartTime:       "07:15",
		DurationMinutes: 30,
	})

	require.NoError(t, err)
	assert.Equal(t, schedule.StatusActive, p.Status)
	assert.Equal(t, time.UTC, p.Location)
	assert.Equal(t, schedule.Daily{}, p.Frequency)
}
