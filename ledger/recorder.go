/*
recorder.go - The only writer of transactions and cached balances

PURPOSE:
  Appends a transaction and updates the owning user's cached debt as one
  atomic unit. If either step fails the whole write is rolled back and
  reported as ErrStorage; no partial state is ever observable.

CONCURRENCY:
  The two-step write runs inside a single storage transaction (WithTx).
  Concurrent readers never observe the cached-balance update without the
  corresponding transaction row, or vice versa. The core performs no
  retries; a failed write is reported to the caller.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// Recorder appends transactions and maintains the cached debt.
type Recorder struct {
	Store TxStore

	// Now supplies event timestamps for derived operations. Tests pin it.
	Now func() time.Time
}

func NewRecorder(store TxStore) *Recorder {
	return &Recorder{Store: store, Now: time.Now}
}

// Record validates the transaction and applies it atomically:
//  1. add Debit to the user's cached debt
//  2. append the transaction row
//
// Fails with ErrUnknownUser if the user is not registered, and with
// ErrStorage (fully rolled back) if either step fails.
func (r *Recorder) Record(ctx context.Context, tx Transaction) error {
	crsid, err := NormalizeCRSID(tx.CRSID)
	if err != nil {
		return err
	}
	tx.CRSID = crsid

	exists, _, err := r.Store.UserExists(ctx, crsid)
	if err != nil {
		return fmt.Errorf("%w: checking user %s: %v", ErrStorage, crsid, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownUser, crsid)
	}

	err = r.Store.WithTx(ctx, func(s Store) error {
		if err := s.AdjustBalance(ctx, crsid, tx.Debit); err != nil {
			return err
		}
		return s.Append(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("%w: recording transaction for %s: %v", ErrStorage, crsid, err)
	}
	return nil
}

// RecordPayment credits a user's debt by a positive amount of pence.
// The payment is logged as a TypePayment transaction with no shot count
// and no originating card.
func (r *Recorder) RecordPayment(ctx context.Context, crsid string, amount Pence) error {
	if amount <= 0 {
		return fmt.Errorf("%w: payment amount must be positive, got %d", ErrValidation, amount)
	}
	return r.Record(ctx, Transaction{
		TS:      r.Now().Unix(),
		CRSID:   crsid,
		Type:    TypePayment,
		Debit:   -amount,
		NCoffee: 0,
		RFID:    NoRFID,
	})
}
