package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/gymbuddies/gymbuddies/internal/domain"
)

// encodeSchedule packs a week vector into the bytea column format: one byte
// per block, flag bits as defined on domain.ScheduleStatus.
func encodeSchedule(schedule domain.Schedule) []byte {
	raw := make([]byte, len(schedule))
	for i, s := range schedule {
		raw[i] = byte(s)
	}
	return raw
}

// decodeSchedule unpacks a bytea column value into a week vector. A stored
// vector with the wrong length is data corruption, not a caller error.
func decodeSchedule(raw []byte) (domain.Schedule, error) {
	if len(raw) != domain.NumWeekBlocks {
		return nil, fmt.Errorf(
			"stored schedule has %d blocks, want %d",
			len(raw),
			domain.NumWeekBlocks,
		)
	}
	schedule := make(domain.Schedule, len(raw))
	for i, b := range raw {
		schedule[i] = domain.ScheduleStatus(b)
	}
	return schedule, nil
}

// encodeInterests serializes the interests set for the jsonb column. Only
// selected interests are stored; absent keys read back as false.
func encodeInterests(interests map[string]bool) ([]byte, error) {
	selected := make([]string, 0, len(interests))
	for name, on := range interests {
		if on {
			selected = append(selected, name)
		}
	}
	return json.Marshal(selected)
}

// decodeInterests deserializes the jsonb interests column into a set.
func decodeInterests(raw []byte) (map[string]bool, error) {
	if len(raw) == 0 {
		return map[string]bool{}, nil
	}
	var selected []string
	if err := json.Unmarshal(raw, &selected); err != nil {
		return nil, fmt.Errorf("failed to decode interests: %w", err)
	}
	interests := make(map[string]bool, len(selected))
	for _, name := range selected {
		interests[name] = true
	}
	return interests, nil
}

// encodeBlocked serializes the blocked-netid list for the jsonb column.
func encodeBlocked(blocked []string) ([]byte, error) {
	if blocked == nil {
		blocked = []string{}
	}
	return json.Marshal(blocked)
}

// decodeBlocked deserializes the jsonb blocked column.
func decodeBlocked(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var blocked []string
	if err := json.Unmarshal(raw, &blocked); err != nil {
		return nil, fmt.Errorf("failed to decode blocked list: %w", err)
	}
	return blocked, nil
}
