package domain

import (
	"fmt"
)

// Schedule granularity constants. A week is divided into fixed five-minute
// blocks; every schedule in the system is a vector of exactly NumWeekBlocks
// statuses.
const (
	// BlockLength is the length of a single time block in minutes.
	BlockLength = 5

	// NumHourBlocks is the number of blocks in one hour.
	NumHourBlocks = 60 / BlockLength

	// NumDayBlocks is the number of blocks in one day.
	NumDayBlocks = 24 * NumHourBlocks

	// NumWeekBlocks is the number of blocks in one week (2016).
	NumWeekBlocks = 7 * NumDayBlocks
)

// ScheduleStatus is a bit-flag set describing a user's standing in a single
// time block. Flags combine: a block that is available and claimed by a
// pending request carries StatusAvailable|StatusPending.
//
// ScheduleStatus is always inspected with bitwise tests (Has), never compared
// for equality against a single flag.
type ScheduleStatus uint8

const (
	// StatusUnavailable is the empty flag set: the user is not available.
	StatusUnavailable ScheduleStatus = 0

	// StatusMatched marks a block claimed by a finalized request.
	StatusMatched ScheduleStatus = 1 << 0

	// StatusPending marks a block claimed by at least one pending request.
	StatusPending ScheduleStatus = 1 << 1

	// StatusAvailable marks a block the user declared open for matching.
	StatusAvailable ScheduleStatus = 1 << 2
)

// Has reports whether every flag in mask is set.
func (s ScheduleStatus) Has(mask ScheduleStatus) bool {
	return s&mask == mask
}

// With returns the status with the given flags raised.
func (s ScheduleStatus) With(mask ScheduleStatus) ScheduleStatus {
	return s | mask
}

// Without returns the status with the given flags cleared.
func (s ScheduleStatus) Without(mask ScheduleStatus) ScheduleStatus {
	return s &^ mask
}

// dayNames indexes day-of-week names from day index 0 (Monday).
var dayNames = [7]string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

// TimeBlock addresses one five-minute slot of the week by a single integer
// index in [0, NumWeekBlocks). Day 0 is Monday.
type TimeBlock int

// FromDayTime converts a (day, timeOfDay) pair to a TimeBlock. day is in
// [0, 7), timeOfDay in [0, NumDayBlocks). Out-of-range arguments are a
// programming error, not a user-facing condition.
func FromDayTime(day, timeOfDay int) TimeBlock {
	if day < 0 || day >= 7 || timeOfDay < 0 || timeOfDay >= NumDayBlocks {
		// ALLOW-PANIC: invalid day/time pairs never come from user input
		panic(fmt.Sprintf("domain: day/time out of range: day=%d time=%d", day, timeOfDay))
	}
	return TimeBlock(day*NumDayBlocks + timeOfDay)
}

// Valid reports whether the block index is within the week.
func (b TimeBlock) Valid() bool {
	return b >= 0 && b < NumWeekBlocks
}

// DayTime converts a TimeBlock back to its (day, timeOfDay) pair. It is the
// exact inverse of FromDayTime.
func (b TimeBlock) DayTime() (day, timeOfDay int) {
	if !b.Valid() {
		// ALLOW-PANIC: invalid indices never come from user input
		panic(fmt.Sprintf("domain: time block out of range: %d", int(b)))
	}
	return int(b) / NumDayBlocks, int(b) % NumDayBlocks
}

// Readable formats the block's start as "Day, H:MMam/pm", e.g.
// "Monday, 6:05pm".
func (b TimeBlock) Readable() string {
	day, timeOfDay := b.DayTime()

	hour := timeOfDay / NumHourBlocks
	minute := BlockLength * (timeOfDay % NumHourBlocks)

	suffix := "am"
	if hour >= 12 {
		suffix = "pm"
	}
	clockHour := hour % 12
	if clockHour == 0 {
		clockHour = 12
	}

	return fmt.Sprintf("%s, %d:%02d%s", dayNames[day], clockHour, minute, suffix)
}

// Schedule is a week-long status vector with exactly NumWeekBlocks entries.
type Schedule []ScheduleStatus

// NewSchedule returns an all-unavailable schedule of the canonical length.
func NewSchedule() Schedule {
	return make(Schedule, NumWeekBlocks)
}

// Validate checks that the vector has the canonical length.
func (s Schedule) Validate() error {
	if len(s) != NumWeekBlocks {
		return fmt.Errorf("%w: schedule has %d blocks, want %d",
			ErrInvalidSchedule, len(s), NumWeekBlocks)
	}
	return nil
}

// Clone returns an independent copy of the schedule.
func (s Schedule) Clone() Schedule {
	out := make(Schedule, len(s))
	copy(out, s)
	return out
}

// Blocks returns the indices of every block carrying all flags in mask.
func (s Schedule) Blocks(mask ScheduleStatus) []TimeBlock {
	var blocks []TimeBlock
	for i, st := range s {
		if st.Has(mask) {
			blocks = append(blocks, TimeBlock(i))
		}
	}
	return blocks
}

// Marked returns a block-indexed membership vector for the blocks carrying
// all flags in mask. Schedule stores take these vectors when raising or
// clearing flags.
func (s Schedule) Marked(mask ScheduleStatus) []bool {
	marked := make([]bool, len(s))
	for i, st := range s {
		if st.Has(mask) {
			marked[i] = true
		}
	}
	return marked
}

// Equal reports whether the two vectors mark the same blocks AVAILABLE.
// Only availability is compared: pending/matched claims do not make two
// proposals different.
func (s Schedule) Equal(other Schedule) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].Has(StatusAvailable) != other[i].Has(StatusAvailable) {
			return false
		}
	}
	return true
}

// Overlaps reports whether any block is AVAILABLE in both schedules.
func (s Schedule) Overlaps(other Schedule) bool {
	n := len(s)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if s[i].Has(StatusAvailable) && other[i].Has(StatusAvailable) {
			return true
		}
	}
	return false
}

// Event is a contiguous run of AVAILABLE blocks [Start, End). Runs never span
// a day boundary; a block of availability crossing midnight is reported as
// two events.
type Event struct {
	Start TimeBlock
	End   TimeBlock
}

// Events collapses the schedule into its AVAILABLE runs. The runs partition
// the AVAILABLE blocks exactly: every available block belongs to exactly one
// event and events contain nothing else. Both the calendar UI and the
// request-conflict explanations are built from this encoding.
func (s Schedule) Events() []Event {
	var events []Event
	start := -1

	for i := 0; i <= len(s); i++ {
		available := i < len(s) && s[i].Has(StatusAvailable)
		dayBoundary := i%NumDayBlocks == 0

		if start >= 0 && (!available || dayBoundary) {
			events = append(events, Event{Start: TimeBlock(start), End: TimeBlock(i)})
			start = -1
		}
		if available && start < 0 {
			start = i
		}
	}

	return events
}

// EventsToSchedule rebuilds an availability mask from an event list. It is
// the inverse of Events for well-formed event lists.
func EventsToSchedule(events []Event) Schedule {
	s := NewSchedule()
	for _, ev := range events {
		for b := ev.Start; b < ev.End; b++ {
			s[b] = s[b].With(StatusAvailable)
		}
	}
	return s
}
