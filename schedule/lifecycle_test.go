package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-engine/generic"
	"github.com/warp/care-engine/schedule"
)

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

func TestTransitions(t *testing.T) {
	type op func(*schedule.ScheduledPackage) error
	pause := (*schedule.ScheduledPackage).Pause
	resume := (*schedule.ScheduledPackage).Resume
	cancel := (*schedule.ScheduledPackage).Cancel

	tests := []struct {
		name    string
		from    schedule.Status
		do      op
		want    schedule.Status
		wantErr bool
	}{
		{"pause active", schedule.StatusActive, pause, schedule.StatusPaused, false},
		{"cancel active", schedule.StatusActive, cancel, schedule.StatusCancelled, false},
		{"resume paused", schedule.StatusPaused, resume, schedule.StatusActive, false},
		{"cancel paused", schedule.StatusPaused, cancel, schedule.StatusCancelled, false},
		{"resume active", schedule.StatusActive, resume, schedule.StatusActive, true},
		{"pause paused", schedule.StatusPaused, pause, schedule.StatusPaused, true},
		{"resume cancelled", schedule.StatusCancelled, resume, schedule.StatusCancelled, true},
		{"pause cancelled", schedule.StatusCancelled, pause, schedule.StatusCancelled, true},
		{"cancel cancelled", schedule.StatusCancelled, cancel, schedule.StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := weeklyPackage()
			p.Status = tt.from

			err := tt.do(&p)

			if tt.wantErr {
				var stateErr *generic.InvalidStateError
				require.ErrorAs(t, err, &stateErr)
				assert.Equal(t, string(tt.from), stateErr.From)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, p.Status)
		})
	}
}

// =============================================================================
// EXCEPTIONS
// =============================================================================

func TestAddException_OutOfRangeLeavesPackageUntouched(t *testing.T) {
	// GIVEN: A package ending Jan 22 with one existing skip
	p := weeklyPackage()
	end := jan(22)
	p.EndDate = &end
	require.NoError(t, p.AddException(jan(8), schedule.ActionSkip, nil))
	before := p.Exceptions

	// WHEN: Adding an exception after the end date
	err := p.AddException(jan(29), schedule.ActionSkip, nil)

	// THEN: Validation error and nothing changed
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Equal(t, before, p.Exceptions)
	assert.Len(t, p.Exceptions, 1)

	err = p.AddException(generic.NewDate(2023, 12, 25), schedule.ActionSkip, nil)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestAddException_MustBeCadenceDate(t *testing.T) {
	p := weeklyPackage()

	err := p.AddException(jan(9), schedule.ActionSkip, nil)

	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "date", verr.Field)
	assert.Empty(t, p.Exceptions)
}

func TestAddException_RescheduleNeedsTime(t *testing.T) {
	p := weeklyPackage()

	err := p.AddException(jan(8), schedule.ActionReschedule, nil)

	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Empty(t, p.Exceptions)
}

func TestAddException_UnknownAction(t *testing.T) {
	p := weeklyPackage()

	err := p.AddException(jan(8), schedule.ExceptionAction("postpone"), nil)

	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestAddException_CancelledRejected(t *testing.T) {
	p := weeklyPackage()
	require.NoError(t, p.Cancel())

	err := p.AddException(jan(8), schedule.ActionSkip, nil)

	assert.ErrorIs(t, err, generic.ErrInvalidState)
}

func TestAddException_AllowedWhilePaused(t *testing.T) {
	p := weeklyPackage()
	require.NoError(t, p.Pause())

	require.NoError(t, p.AddException(jan(8), schedule.ActionSkip, nil))
	require.NoError(t, p.Resume())

	occ, err := schedule.Occurrences(p, jan(1), jan(14))
	require.NoError(t, err)
	assert.Equal(t, []generic.Date{jan(1)}, occurrenceDates(occ))
}

func TestAddException_ReplacesExisting(t *testing.T) {
	p := weeklyPackage()
	require.NoError(t, p.AddException(jan(8), schedule.ActionSkip, nil))

	moved := at(9, 15)
	require.NoError(t, p.AddException(jan(8), schedule.ActionReschedule, &moved))

	require.Len(t, p.Exceptions, 1)
	exc := p.Exceptions[jan(8)]
	assert.Equal(t, schedule.ActionReschedule, exc.Action)
	require.NotNil(t, exc.NewStart)
	assert.Equal(t, moved, *exc.NewStart)
}

func TestAddException_CopiesRescheduleTime(t *testing.T) {
	p := weeklyPackage()
	moved := at(9, 15)
	require.NoError(t, p.AddException(jan(8), schedule.ActionReschedule, &moved))

	moved = at(30, 15)

	assert.Equal(t, at(9, 15), *p.Exceptions[jan(8)].NewStart)
}

func TestAddException_RescheduleCollisions(t *testing.T) {
	p := weeklyPackage()

	// Onto another scheduled visit
	onto15 := at(15, 13)
	err := p.AddException(jan(8), schedule.ActionReschedule, &onto15)
	assert.ErrorIs(t, err, generic.ErrValidation)

	// Onto a day that already receives another rescheduled visit
	onto10 := at(10, 13)
	require.NoError(t, p.AddException(jan(8), schedule.ActionReschedule, &onto10))
	err = p.AddException(jan(15), schedule.ActionReschedule, &onto10)
	assert.ErrorIs(t, err, generic.ErrValidation)

	// Onto a visit that is itself skipped is fine
	require.NoError(t, p.AddException(jan(22), schedule.ActionSkip, nil))
	onto22 := at(22, 16)
	require.NoError(t, p.AddException(jan(15), schedule.ActionReschedule, &onto22))

	// Turning that skip into a same-day reschedule would double-book the 22nd
	evening22 := at(22, 18)
	err = p.AddException(jan(22), schedule.ActionReschedule, &evening22)
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Equal(t, schedule.ActionSkip, p.Exceptions[jan(22)].Action)

	// Same day, different time is fine
	later := at(29, 17)
	require.NoError(t, p.AddException(jan(29), schedule.ActionReschedule, &later))
	assert.Len(t, p.Exceptions, 4)

	occ, err := schedule.Occurrences(p, jan(1), jan(31))
	require.NoError(t, err)
	assert.Equal(t, []generic.Date{jan(1), jan(10), jan(22), jan(29)}, occurrenceDates(occ))
}

func TestAddException_CopyOnWrite(t *testing.T) {
	p := weeklyPackage()
	require.NoError(t, p.AddException(jan(8), schedule.ActionSkip, nil))
	snapshot := p

	require.NoError(t, p.AddException(jan(15), schedule.ActionSkip, nil))

	assert.Len(t, snapshot.Exceptions, 1)
	assert.Len(t, p.Exceptions, 2)
}

func TestRemoveException(t *testing.T) {
	p := weeklyPackage()
	require.NoError(t, p.AddException(jan(8), schedule.ActionSkip, nil))

	require.NoError(t, p.RemoveException(jan(8)))

	assert.Empty(t, p.Exceptions)
	occ, err := schedule.Occurrences(p, jan(1), jan(8))
	require.NoError(t, err)
	assert.Equal(t, []generic.Date{jan(1), jan(8)}, occurrenceDates(occ))
}

func TestRemoveException_AbsentIsNoop(t *testing.T) {
	p := weeklyPackage()

	assert.NoError(t, p.RemoveException(jan(15)))
	assert.Empty(t, p.Exceptions)
}

func TestRemoveException_OutOfRange(t *testing.T) {
	p := weeklyPackage()

	err := p.RemoveException(generic.NewDate(2023, 12, 25))

	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestRemoveException_WouldDoubleBook(t *testing.T) {
	// GIVEN: Jan 22 is skipped and the Jan 15 visit moved onto Jan 22
	p := weeklyPackage()
	require.NoError(t, p.AddException(jan(22), schedule.ActionSkip, nil))
	onto22 := at(22, 16)
	require.NoError(t, p.AddException(jan(15), schedule.ActionReschedule, &onto22))

	// WHEN: Un-skipping Jan 22
	err := p.RemoveException(jan(22))

	// THEN: Rejected, both exceptions remain
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Len(t, p.Exceptions, 2)
}
