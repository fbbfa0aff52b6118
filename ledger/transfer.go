package ledger

import (
	"fmt"

	"github.com/hupe1980/booktrader/core"
)

// AssignIDs returns a copy of snap where every book without an instance id
// receives a fresh one.
func AssignIDs(snap core.Snapshot) core.Snapshot {
	out := snap.Clone()
	for i := range out.Inventory {
		if out.Inventory[i].ID == "" {
			out.Inventory[i].ID = core.NewID()
		}
	}
	return out
}

// Transfer moves tx's sending portion from sender to receiver and returns
// the updated copies. Inputs are not modified; on error nothing is applied.
// Books are matched by instance id, or by name when the id is empty.
func Transfer(sender, receiver core.Snapshot, tx core.TransactionRequest) (core.Snapshot, core.Snapshot, error) {
	if err := tx.Validate(); err != nil {
		return sender, receiver, fmt.Errorf("%w: %v", core.ErrSettlementFailure, err)
	}
	if tx.Sender == tx.Receiver {
		return sender, receiver, fmt.Errorf("%w: self trade %s", core.ErrSettlementFailure, tx.ConversationID)
	}

	s, r := sender.Clone(), receiver.Clone()

	for _, want := range tx.SendingBooks {
		idx := indexOf(s.Inventory, want)
		if idx < 0 {
			return sender, receiver, fmt.Errorf("%w: %w: %s does not hold %s", core.ErrSettlementFailure, core.ErrBookNotOwned, tx.Sender, want)
		}
		book := s.Inventory[idx]
		s.Inventory = append(s.Inventory[:idx], s.Inventory[idx+1:]...)
		r.Inventory = append(r.Inventory, book)
	}

	if s.Money.LessThan(tx.SendingMoney) {
		return sender, receiver, fmt.Errorf("%w: %w: %s has %s, needs %s", core.ErrSettlementFailure, core.ErrInsufficientFunds, tx.Sender, s.Money, tx.SendingMoney)
	}
	s.Money = s.Money.Sub(tx.SendingMoney)
	r.Money = r.Money.Add(tx.SendingMoney)

	return s, r, nil
}

// SameRequest reports whether a and b describe the same submission.
func SameRequest(a, b core.TransactionRequest) bool {
	return a.Sender == b.Sender &&
		a.Receiver == b.Receiver &&
		a.ConversationID == b.ConversationID &&
		a.SendingMoney.Equal(b.SendingMoney) &&
		a.ReceivingMoney.Equal(b.ReceivingMoney) &&
		sameBooks(a.SendingBooks, b.SendingBooks) &&
		sameBooks(a.ReceivingBooks, b.ReceivingBooks)
}

// Mirrors reports whether two halves of one conversation agree: what each
// side sends is what the other expects to receive.
func Mirrors(a, b core.TransactionRequest) bool {
	return a.Sender == b.Receiver && a.Receiver == b.Sender &&
		a.SendingMoney.Equal(b.ReceivingMoney) && b.SendingMoney.Equal(a.ReceivingMoney) &&
		(core.Offer{Books: a.SendingBooks}).SameTerms(core.Offer{Books: b.ReceivingBooks}) &&
		(core.Offer{Books: b.SendingBooks}).SameTerms(core.Offer{Books: a.ReceivingBooks})
}

func indexOf(inventory []core.Book, want core.Book) int {
	for i, b := range inventory {
		if want.ID != "" {
			if b.ID == want.ID && b.Name == want.Name {
				return i
			}
			continue
		}
		if b.Name == want.Name {
			return i
		}
	}
	return -1
}

func sameBooks(a, b []core.Book) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
