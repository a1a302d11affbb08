// Package store defines interfaces for data persistence operations on
// users, pairing requests, and schedules, plus the serializable
// transaction runner the services use to keep schedule flags and request
// state consistent. The interfaces abstract the underlying storage so
// business rules stay independent of the database.
package store
