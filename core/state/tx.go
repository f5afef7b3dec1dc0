package state

import (
	stderrors "errors"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// ErrTxClosed is returned when a unit of work is used after Commit or Discard.
var ErrTxClosed = stderrors.New("state: unit of work closed")

// Tx is a unit of work over the state. Writes are staged in memory and become
// visible to the parent only on Commit; Discard drops them. A Tx opened from a
// Manager commits to the database as a single atomic batch, a Tx opened from
// another Tx commits into its parent's staged writes.
//
// Tx is not safe for concurrent use.
type Tx struct {
	parent store
	writes map[string][]byte
	order  [][]byte
	closed bool
}

func newTx(parent store) *Tx {
	return &Tx{
		parent: parent,
		writes: make(map[string][]byte),
	}
}

func (t *Tx) getRaw(hashed []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrTxClosed
	}
	if data, ok := t.writes[string(hashed)]; ok {
		return data, true, nil
	}
	return t.parent.getRaw(hashed)
}

func (t *Tx) apply(writes map[string][]byte, order [][]byte) error {
	if t.closed {
		return ErrTxClosed
	}
	for _, key := range order {
		t.stage(key, writes[string(key)])
	}
	return nil
}

func (t *Tx) stage(hashed, encoded []byte) {
	id := string(hashed)
	if _, exists := t.writes[id]; !exists {
		t.order = append(t.order, append([]byte(nil), hashed...))
	}
	t.writes[id] = encoded
}

// KVGet reads through the staged writes to the parent.
func (t *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	return decodeRaw(t, key, out)
}

// KVPut stages an RLP encoded write.
func (t *Tx) KVPut(key []byte, value interface{}) error {
	if t.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return stderrors.New("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return errors.Wrap(err, "kv: encode")
	}
	t.stage(kvKey(key), encoded)
	return nil
}

// Begin opens a nested unit of work whose commit lands in this one.
func (t *Tx) Begin() *Tx {
	return newTx(t)
}

// Update runs fn in a nested unit of work.
func (t *Tx) Update(fn func(tx *Tx) error) error {
	return update(t, fn)
}

// Pending reports the number of staged keys.
func (t *Tx) Pending() int {
	return len(t.order)
}

// Commit hands the staged writes to the parent and closes the unit of work.
func (t *Tx) Commit() error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	err := t.parent.apply(t.writes, t.order)
	t.writes = nil
	t.order = nil
	return err
}

// Discard drops the staged writes. It is safe to call after Commit, which makes
// `defer tx.Discard()` the usual pattern.
func (t *Tx) Discard() {
	if t.closed {
		return
	}
	t.closed = true
	t.writes = nil
	t.order = nil
}
