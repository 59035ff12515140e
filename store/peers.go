package store

import (
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Put implements channel.PeerTable: it persists endpoint immediately, so
// a reconnect attempt mid-batch is never lost to an uncommitted write
// transaction.
func (s *Store) Put(endpoint string, services uint64, lastSeen time.Time) error {
	value := encodePeer(peerRecord{Services: services, LastSeen: lastSeen.Unix()})
	return errors.WithStack(s.db.Put(peerKey(endpoint), value, nil))
}

// Clear implements channel.PeerTable: it drops every known-peer record,
// the step StoreAll takes before writing back the current registry.
func (s *Store) Clear() error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{prefixPeer}), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	return errors.WithStack(s.db.Write(batch, nil))
}

// Peers returns every known endpoint, for seeding the registry's
// reachout loop on startup.
func (s *Store) Peers() ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{prefixPeer}), nil)
	defer iter.Release()

	var out []string
	for iter.Next() {
		out = append(out, string(iter.Key()[1:]))
	}
	return out, nil
}
