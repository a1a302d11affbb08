// Package postgres implements the internal/store interfaces against
// PostgreSQL. It owns the SQL, the encoding of schedule vectors and
// profile fields into database columns, the schedule_blocks projection,
// and the mapping of driver errors onto store sentinel errors.
package postgres
