package store

import (
	"github.com/latticenet/latticenode/block"
)

// PutPending stages a new unreceived-send record under txn, keyed by the
// send block's own hash.
func (txn *Transaction) PutPending(sendHash block.Hash, amount uint64, source, destination block.Account) error {
	return txn.put(pendingKey(sendHash), encodePending(pendingRecord{
		Amount:      amount,
		Source:      source,
		Destination: destination,
	}))
}

// ConsumePending marks sendHash's pending record consumed, leaving it in
// place so a later rollback can find and un-consume it.
func (txn *Transaction) ConsumePending(sendHash block.Hash) error {
	rec, found, err := txn.getPending(sendHash)
	if err != nil || !found {
		return err
	}
	rec.Consumed = true
	return txn.put(pendingKey(sendHash), encodePending(rec))
}

// UnconsumePending reverses ConsumePending, for a rollback that removes
// the receive which had consumed it.
func (txn *Transaction) UnconsumePending(sendHash block.Hash) error {
	rec, found, err := txn.getPending(sendHash)
	if err != nil || !found {
		return err
	}
	rec.Consumed = false
	return txn.put(pendingKey(sendHash), encodePending(rec))
}

// DeletePending removes sendHash's pending record entirely, once the
// send block itself has been rolled back.
func (txn *Transaction) DeletePending(sendHash block.Hash) error {
	return txn.delete(pendingKey(sendHash))
}

func (txn *Transaction) getPending(sendHash block.Hash) (pendingRecord, bool, error) {
	data, err := txn.get(pendingKey(sendHash))
	if err == ErrNotFound {
		return pendingRecord{}, false, nil
	}
	if err != nil {
		return pendingRecord{}, false, err
	}
	rec, err := decodePending(data)
	if err != nil {
		return pendingRecord{}, false, err
	}
	return rec, true, nil
}

// GetPending returns sendHash's pending record.
func (txn *Transaction) GetPending(sendHash block.Hash) (amount uint64, source, destination block.Account, consumed bool, found bool, err error) {
	rec, found, err := txn.getPending(sendHash)
	if err != nil || !found {
		return 0, block.Account{}, block.Account{}, false, found, err
	}
	return rec.Amount, rec.Source, rec.Destination, rec.Consumed, true, nil
}
