package state

import (
	stderrors "errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"lsdchain/storage"
)

// KV is the typed key/value surface the native ledgers read and write through.
// Values are RLP encoded; keys are hashed before they reach the backing store.
type KV interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Backend opens units of work. Both Manager and Tx satisfy it so a caller can
// nest a unit of work inside a larger one.
type Backend interface {
	Begin() *Tx
}

// store is the raw layer underneath a unit of work.
type store interface {
	getRaw(hashed []byte) ([]byte, bool, error)
	apply(writes map[string][]byte, order [][]byte) error
}

// Manager provides typed access to the persisted state and opens units of work
// over it.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) getRaw(hashed []byte) ([]byte, bool, error) {
	if m == nil || m.db == nil {
		return nil, false, stderrors.New("state manager unavailable")
	}
	data, err := m.db.Get(hashed)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "state: read")
	}
	return data, true, nil
}

func (m *Manager) apply(writes map[string][]byte, order [][]byte) error {
	if m == nil || m.db == nil {
		return stderrors.New("state manager unavailable")
	}
	if len(order) == 0 {
		return nil
	}
	batch := storage.NewBatch()
	for _, key := range order {
		batch.Put(key, writes[string(key)])
	}
	if err := m.db.Write(batch); err != nil {
		return errors.Wrapf(err, "state: commit %d writes", batch.Len())
	}
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	return decodeRaw(m, key, out)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The write bypasses any unit of work and lands in the database immediately.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return stderrors.New("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return errors.Wrap(err, "kv: encode")
	}
	hashed := kvKey(key)
	return m.apply(map[string][]byte{string(hashed): encoded}, [][]byte{hashed})
}

// Begin opens a root unit of work. Nothing staged in it reaches the database
// until Commit.
func (m *Manager) Begin() *Tx {
	return newTx(m)
}

// Update runs fn inside a unit of work, committing when fn returns nil and
// discarding every staged write otherwise.
func (m *Manager) Update(fn func(tx *Tx) error) error {
	return update(m, fn)
}

// View runs fn against a unit of work that is always discarded.
func (m *Manager) View(fn func(kv KV) error) error {
	tx := m.Begin()
	defer tx.Discard()
	return fn(tx)
}

func update(b Backend, fn func(tx *Tx) error) error {
	tx := b.Begin()
	defer tx.Discard()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func decodeRaw(s store, key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, stderrors.New("kv: key must not be empty")
	}
	data, ok, err := s.getRaw(kvKey(key))
	if err != nil {
		return false, err
	}
	if !ok || len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, errors.Wrap(err, "kv: decode")
	}
	return true, nil
}
