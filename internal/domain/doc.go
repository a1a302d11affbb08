// Package domain contains the core business entities and logic of the
// gym-buddy pairing system: users with weekly bitflag schedules, pairing
// requests and their lifecycle, and the time-block arithmetic both are
// built on. It is independent of any specific infrastructure or delivery
// mechanism.
package domain
