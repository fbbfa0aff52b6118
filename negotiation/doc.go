// Package negotiation implements the contract-net trading protocol between
// book trading agents.
//
// Two roles run concurrently inside every agent:
//
//   - Initiator (buyer): asks every trading peer for one missing goal book,
//     collects proposal sets until a deadline, selects the feasible offer with
//     the highest utility, accepts it, rejects the rest and settles once the
//     seller confirms its own settlement.
//   - Responder (seller): answers a request with a proposal set built by
//     Generate, waits for the buyer's decision and settles the chosen offer.
//
// Both roles are explicit state machines. They read Agent State from a
// core.StateStore snapshot taken at decision time and never mutate it; only
// the Settler replaces the state after a confirmed settlement. Nothing is
// reserved between proposing and settling, so two rounds may promise the
// same book; the settlement authority rejects the second transfer.
//
// Scheduler drives the initiator side: on each tick it starts one round per
// unsatisfied goal.
package negotiation
