package repositories

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

const maxTxnRetries = 16

// runUpdate executes fn in a read-modify-write transaction, retrying on
// serialization conflicts. Counter increments and presence flips go
// through here so concurrent writers never lose an update.
func runUpdate(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}
