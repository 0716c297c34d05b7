// Package cw20 provides a minimal, process-local balance ledger satisfying
// fge.FungibleToken. Each daogovd deployment is expected to eventually proxy
// this interface to a real cw20-style token contract elsewhere on-chain;
// until that integration exists, Ledger lets the Fungible Governance Engine
// run end-to-end against a self-contained balance table persisted in the
// same LevelDB instance, keyed the way native/bank keys its entries.
package cw20

import (
	"github.com/holiman/uint256"

	"daogov/errs"
	"daogov/storage"
)

const prefixBalance = "cw20:balance:"

// Ledger is a trivial mint-and-transfer balance table.
type Ledger struct {
	db storage.Database
}

// NewLedger wires a Ledger over db.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

// BalanceOf implements fge.FungibleToken. A missing entry is a zero balance.
func (l *Ledger) BalanceOf(addr string) (*uint256.Int, error) {
	raw, err := l.db.Get([]byte(prefixBalance + addr))
	if err != nil {
		return uint256.NewInt(0), nil
	}
	bal := new(uint256.Int)
	if err := bal.SetFromDecimal(string(raw)); err != nil {
		return nil, err
	}
	return bal, nil
}

// Transfer implements fge.FungibleToken: it moves amount into to's balance.
// The sending side is never consulted because the engine only calls
// Transfer to pay out deposits and withdrawals it has already debited from
// its own internal accounting.
func (l *Ledger) Transfer(to string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	bal, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	next := new(uint256.Int).Add(bal, amount)
	return l.db.Put([]byte(prefixBalance+to), []byte(next.Dec()))
}

// Mint credits addr with amount, the same credit Transfer performs. Nothing
// in daogovd, daogov-cli or the HTTP APIs calls it.
func (l *Ledger) Mint(addr string, amount *uint256.Int) error {
	return l.Transfer(addr, amount)
}

// Debit removes amount from addr's balance, failing if the balance is
// insufficient.
func (l *Ledger) Debit(addr string, amount *uint256.Int) error {
	bal, err := l.BalanceOf(addr)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return errs.New(errs.KindInsufficientFunds, "insufficient balance for %s", addr)
	}
	next := new(uint256.Int).Sub(bal, amount)
	return l.db.Put([]byte(prefixBalance+addr), []byte(next.Dec()))
}
