// Package circulation contains the domain core of the library circulation
// system: books with copy counts, the loan lifecycle, renewal requests,
// FIFO reservations and fine computation.
//
// Everything in this package is pure - state transitions are expressed as
// explicit transition tables and decision functions that take the current
// state plus an intent and return the next state or a typed error. All
// persistence and side effects live in the engine packages below it,
// e.g. circulation/postgresengine.
package circulation
