// Package ledger provides reference implementations of the settlement
// authority: the system of record that owns every agent's inventory and
// money and executes agreed trades.
//
// Each side of a negotiation submits its own TransactionRequest. The ledger
// applies the sender's outgoing portion (its sending books and money) to
// the receiver, rejects books the sender no longer owns and overdrafts, and
// applies every (conversation id, sender) pair at most once. Detecting a
// book that two concurrent negotiations both promised is therefore the
// ledger's job, not the negotiators'.
//
// InMemoryLedger suits tests and simulations; package ledger/sqlite offers a
// durable variant. Service exposes any authority to remote agents over a
// dispatcher under the settlement role.
package ledger
