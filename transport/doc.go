// Package transport provides an in-process Network that delivers envelopes
// between agents and answers directory lookups. It is the default wiring
// for simulations and tests; package transport/ws offers the same
// Transport and Directory contracts over websockets.
package transport
