package domain

import (
	"slices"
	"time"
)

// Gender enumerates the profile gender options.
type Gender int

const (
	GenderUnspecified Gender = 0
	GenderMale        Gender = 1
	GenderFemale      Gender = 2
	GenderNonbinary   Gender = 3
)

// Level is a user's self-reported experience level.
type Level int

const (
	LevelBeginner     Level = 0
	LevelIntermediate Level = 1
	LevelAdvanced     Level = 2
)

// Readable returns a human-readable name for the level.
func (l Level) Readable() string {
	switch l {
	case LevelBeginner:
		return "beginner"
	case LevelIntermediate:
		return "intermediate"
	case LevelAdvanced:
		return "advanced"
	default:
		return "unknown"
	}
}

// LevelPreference states which partner levels a user accepts relative to
// their own.
type LevelPreference int

const (
	// LevelPrefAll accepts any level.
	LevelPrefAll LevelPreference = 0
	// LevelPrefEqual accepts only partners at the same level.
	LevelPrefEqual LevelPreference = 1
	// LevelPrefLessEqual accepts partners at or below the user's level.
	LevelPrefLessEqual LevelPreference = 2
	// LevelPrefGreaterEqual accepts partners at or above the user's level.
	LevelPrefGreaterEqual LevelPreference = 3
)

// Satisfied reports whether a partner at theirs satisfies the preference of
// a user at mine.
func (p LevelPreference) Satisfied(mine, theirs Level) bool {
	switch p {
	case LevelPrefAll:
		return true
	case LevelPrefEqual:
		return mine == theirs
	case LevelPrefLessEqual:
		return theirs <= mine
	case LevelPrefGreaterEqual:
		return theirs >= mine
	default:
		return false
	}
}

// User is a registered profile. The netid is the primary key for every
// user-scoped operation in the system.
type User struct {
	NetID   string
	Name    string
	Contact string
	Bio     string

	Gender      Gender
	OkMale      bool
	OkFemale    bool
	OkNonbinary bool

	Level           Level
	LevelPreference LevelPreference
	Interests       map[string]bool

	// Open gates matchmaking: closed users neither send nor receive new
	// requests.
	Open bool

	// Notifications is the SMS opt-in consumed by the (external) dispatcher.
	Notifications bool

	Schedule Schedule
	Blocked  []string

	LastUpdated time.Time
}

// Validate checks structural integrity of the profile.
func (u *User) Validate() error {
	if u.NetID == "" {
		return ErrEmptyNetID
	}
	return u.Schedule.Validate()
}

// AcceptsGender reports whether the user's stated preferences admit a
// partner of gender g. An unspecified gender is never filtered out.
func (u *User) AcceptsGender(g Gender) bool {
	switch g {
	case GenderMale:
		return u.OkMale
	case GenderFemale:
		return u.OkFemale
	case GenderNonbinary:
		return u.OkNonbinary
	default:
		return true
	}
}

// HasBlocked reports whether netid is on the user's blocked list.
func (u *User) HasBlocked(netid string) bool {
	return slices.Contains(u.Blocked, netid)
}

// SharedInterests counts the interests both users have marked.
func (u *User) SharedInterests(other *User) int {
	n := 0
	for interest, marked := range u.Interests {
		if marked && other.Interests[interest] {
			n++
		}
	}
	return n
}

// ProfileUpdate enumerates every profile field a caller may change. Nil
// fields are left untouched. Using an explicit struct instead of a dynamic
// field map makes an invalid field name a compile-time error.
type ProfileUpdate struct {
	Name    *string
	Contact *string
	Bio     *string

	Gender      *Gender
	OkMale      *bool
	OkFemale    *bool
	OkNonbinary *bool

	Level           *Level
	LevelPreference *LevelPreference
	Interests       map[string]bool

	Open          *bool
	Notifications *bool
	Blocked       []string
}

// Apply copies the set fields onto the user.
func (p ProfileUpdate) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Contact != nil {
		u.Contact = *p.Contact
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Gender != nil {
		u.Gender = *p.Gender
	}
	if p.OkMale != nil {
		u.OkMale = *p.OkMale
	}
	if p.OkFemale != nil {
		u.OkFemale = *p.OkFemale
	}
	if p.Level != nil {
		u.Level = *p.Level
	}
	if p.LevelPreference != nil {
		u.LevelPreference = *p.LevelPreference
	}
	if p.OkNonbinary != nil {
		u.OkNonbinary = *p.OkNonbinary
	}
	if p.Interests != nil {
		u.Interests = p.Interests
	}
	if p.Open != nil {
		u.Open = *p.Open
	}
	if p.Notifications != nil {
		u.Notifications = *p.Notifications
	}
	if p.Blocked != nil {
		u.Blocked = p.Blocked
	}
}
