// Package core provides the foundational domain types, interfaces and state
// containers shared by every part of the book trader. It defines:
//
//   - Goods and money (Book, Goal, Offer, ProposalSet, TransactionRequest)
//   - Agent State (Snapshot) and the StateStore guarding it
//   - The closed set of negotiation and settlement message variants
//   - Envelopes and performatives exchanged over a Transport
//   - The external boundaries the negotiation core calls but does not
//     implement (Transport, Directory, SettlementAuthority)
//
// The package keeps protocol logic (negotiation, settlement, transport) out
// of scope so that each can be swapped or tested in isolation.
package core
