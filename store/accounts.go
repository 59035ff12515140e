package store

import (
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/latticenet/latticenode/block"
	"github.com/latticenet/latticenode/scheduler"
)

// PutAccount stages account's updated chain-head record under txn.
func (txn *Transaction) PutAccount(account block.Account, head, headRoot, confirmedFrontier block.Hash, balance uint64) error {
	return txn.put(accountKey(account), encodeAccount(accountRecord{
		Head:              head,
		HeadRoot:          headRoot,
		ConfirmedFrontier: confirmedFrontier,
		Balance:           balance,
	}))
}

// SetConfirmedFrontier advances account's confirmed-frontier pointer to
// hash without otherwise touching its record. It does nothing if account
// has no record.
func (txn *Transaction) SetConfirmedFrontier(account block.Account, hash block.Hash) error {
	rec, found, err := txn.getAccount(account)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	rec.ConfirmedFrontier = hash
	return txn.put(accountKey(account), encodeAccount(rec))
}

func (txn *Transaction) getAccount(account block.Account) (accountRecord, bool, error) {
	data, err := txn.get(accountKey(account))
	if err == ErrNotFound {
		return accountRecord{}, false, nil
	}
	if err != nil {
		return accountRecord{}, false, err
	}
	rec, err := decodeAccount(data)
	if err != nil {
		return accountRecord{}, false, err
	}
	return rec, true, nil
}

// GetAccount returns account's stored chain-head record.
func (txn *Transaction) GetAccount(account block.Account) (head, headRoot, confirmedFrontier block.Hash, balance uint64, found bool, err error) {
	rec, found, err := txn.getAccount(account)
	if err != nil || !found {
		return block.Hash{}, block.Hash{}, block.Hash{}, 0, found, err
	}
	return rec.Head, rec.HeadRoot, rec.ConfirmedFrontier, rec.Balance, true, nil
}

// AllBalances returns every account's current balance, keyed by account.
// It is the store-backed source a representative weight snapshot
// recomputes itself from, since the store keeps no separate delegation
// index.
func (s *Store) AllBalances() map[block.Account]uint64 {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{prefixAccount}), nil)
	defer iter.Release()

	out := make(map[block.Account]uint64)
	for iter.Next() {
		var account block.Account
		copy(account[:], iter.Key()[1:])

		rec, err := decodeAccount(iter.Value())
		if err != nil {
			log.Errorf("allbalances: skipping malformed account record for %s: %v", account, err)
			continue
		}
		out[account] = rec.Balance
	}
	return out
}

// Unconfirmed implements backlog.FrontierSource: every account whose
// chain head has advanced past its confirmed frontier is a candidate the
// priority scheduler should weigh by balance.
func (s *Store) Unconfirmed() []scheduler.Candidate {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{prefixAccount}), nil)
	defer iter.Release()

	var out []scheduler.Candidate
	for iter.Next() {
		var account block.Account
		copy(account[:], iter.Key()[1:])

		rec, err := decodeAccount(iter.Value())
		if err != nil {
			log.Errorf("unconfirmed: skipping malformed account record for %s: %v", account, err)
			continue
		}
		if rec.Head == rec.ConfirmedFrontier {
			continue
		}
		out = append(out, scheduler.Candidate{
			Hash:   rec.Head,
			Root:   block.QualifiedRoot{Account: account, Root: rec.HeadRoot},
			Weight: rec.Balance,
		})
	}
	return out
}
