package store

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/latticenet/latticenode/block"
)

// encodeBlock serializes blk into the fixed-layout record written under
// the blocks table: every field preceding the sideband is fixed width, so
// decodeBlock never has to scan for a delimiter.
func encodeBlock(blk *block.Block) []byte {
	var buf bytes.Buffer
	buf.Write(blk.Hash()[:])
	buf.Write(blk.Previous()[:])
	buf.Write(blk.Root()[:])
	buf.Write(blk.Account()[:])
	writeUint32(&buf, uint32(blk.Type()))
	buf.Write(blk.Destination()[:])
	buf.Write(blk.Link()[:])
	writeUint64(&buf, blk.Balance())
	writeUint64(&buf, blk.Work())
	sig := blk.Signature()
	buf.Write(sig[:])
	if sideband := blk.Sideband(); sideband != nil {
		buf.WriteByte(1)
		if sideband.IsSend {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.WriteByte(sideband.Epoch)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

const fixedBlockLen = 32*6 + 4 + 64 + 8 + 8

// decodeBlock reverses encodeBlock.
func decodeBlock(data []byte) (*block.Block, error) {
	if len(data) < fixedBlockLen+1 {
		return nil, errors.Errorf("store: truncated block record (%d bytes)", len(data))
	}
	r := bytes.NewReader(data)

	var hash, previous, root, account, destination, link block.Hash
	readHash(r, &hash)
	readHash(r, &previous)
	readHash(r, &root)
	readHash(r, &account)
	typ := block.Type(readUint32(r))
	readHash(r, &destination)
	readHash(r, &link)
	balance := readUint64(r)
	work := readUint64(r)

	var signature [64]byte
	if _, err := r.Read(signature[:]); err != nil {
		return nil, errors.WithStack(err)
	}

	var sideband *block.Sideband
	hasSideband, err := r.ReadByte()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if hasSideband == 1 {
		isSend, err := r.ReadByte()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		epoch, err := r.ReadByte()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		sideband = &block.Sideband{IsSend: isSend == 1, Epoch: epoch}
	}

	return block.New(hash, previous, root, account, typ, destination, link, balance, work, signature, sideband), nil
}

// accountRecord is the durable view of one account's chain, enough to
// tell the backlog populator which accounts have an unconfirmed frontier
// without re-walking the chain itself.
type accountRecord struct {
	Head              block.Hash
	HeadRoot          block.Hash
	ConfirmedFrontier block.Hash
	Balance           uint64
}

func encodeAccount(a accountRecord) []byte {
	var buf bytes.Buffer
	buf.Write(a.Head[:])
	buf.Write(a.HeadRoot[:])
	buf.Write(a.ConfirmedFrontier[:])
	writeUint64(&buf, a.Balance)
	return buf.Bytes()
}

func decodeAccount(data []byte) (accountRecord, error) {
	if len(data) != 32*3+8 {
		return accountRecord{}, errors.Errorf("store: truncated account record (%d bytes)", len(data))
	}
	r := bytes.NewReader(data)
	var a accountRecord
	readHash(r, &a.Head)
	readHash(r, &a.HeadRoot)
	readHash(r, &a.ConfirmedFrontier)
	a.Balance = readUint64(r)
	return a, nil
}

// pendingRecord is one unreceived send awaiting its matching receive.
type pendingRecord struct {
	Amount      uint64
	Source      block.Account
	Destination block.Account
	Consumed    bool
}

func encodePending(p pendingRecord) []byte {
	var buf bytes.Buffer
	writeUint64(&buf, p.Amount)
	buf.Write(p.Source[:])
	buf.Write(p.Destination[:])
	if p.Consumed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func decodePending(data []byte) (pendingRecord, error) {
	if len(data) != 8+32+32+1 {
		return pendingRecord{}, errors.Errorf("store: truncated pending record (%d bytes)", len(data))
	}
	r := bytes.NewReader(data)
	var p pendingRecord
	p.Amount = readUint64(r)
	readHash(r, &p.Source)
	readHash(r, &p.Destination)
	consumed, _ := r.ReadByte()
	p.Consumed = consumed == 1
	return p, nil
}

// peerRecord is the restart-recovery view of one known endpoint.
type peerRecord struct {
	Services uint64
	LastSeen int64 // unix seconds
}

func encodePeer(p peerRecord) []byte {
	var buf bytes.Buffer
	writeUint64(&buf, p.Services)
	writeUint64(&buf, uint64(p.LastSeen))
	return buf.Bytes()
}

func decodePeer(data []byte) (peerRecord, error) {
	if len(data) != 16 {
		return peerRecord{}, errors.Errorf("store: truncated peer record (%d bytes)", len(data))
	}
	r := bytes.NewReader(data)
	return peerRecord{Services: readUint64(r), LastSeen: int64(readUint64(r))}, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) uint32 {
	var b [4]byte
	r.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func readUint64(r *bytes.Reader) uint64 {
	var b [8]byte
	r.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

func readHash(r *bytes.Reader, h *block.Hash) {
	r.Read(h[:])
}
