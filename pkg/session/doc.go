// Package session implements the fixed-capacity session registry.
//
// A Registry is a slot-addressed table of Sessions. Each Session owns the
// byte queues for one connection, the cipher key schedules for both
// directions and its lifecycle state:
//
//	ACTIVE --Teardown--> CLOSING --output drained--> CLOSED
//	   \_____________TeardownImmediate_____________/
//
// The registry is not safe for concurrent use. It belongs to the event loop
// goroutine; the pump and dispatcher borrow sessions for the length of one
// phase and must not keep references across ticks.
package session
