// Package mocks provides centralized test doubles for the store interfaces.
//
// The in-memory store keeps users, requests, and schedules in plain maps and
// implements the same store interfaces the PostgreSQL stores do, so service
// tests can exercise full state-machine scenarios without a database.
// Instead of defining inline fakes in individual test files, these
// standardized implementations can be reused.
//
// Usage:
//
//	import "github.com/gymbuddies/gymbuddies/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    mem := mocks.NewMemStore()
//	    mem.AddUser(&domain.User{NetID: "aa1234", ...})
//	    svc, _ := pairing.NewService(
//	        mem.Users(), mem.Requests(), mem.Schedules(),
//	        mocks.DirectRunner{}, nil,
//	    )
//	    // Drive the service...
//	}
package mocks
