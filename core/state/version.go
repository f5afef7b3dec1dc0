package state

import (
	"errors"
	"fmt"
	"math"
)

// SchemaVersion identifies the on-disk layout of the ledgers. Increment it
// whenever a stored record changes shape.
const SchemaVersion uint32 = 1

var (
	schemaVersionKey = []byte("state/version")
	// ErrSchemaVersionMismatch indicates the stored schema version does not
	// match the version supported by this binary.
	ErrSchemaVersionMismatch = errors.New("state: schema version mismatch")
)

// SetSchemaVersion records version in kv.
func SetSchemaVersion(kv KV, version uint32) error {
	return kv.KVPut(schemaVersionKey, uint64(version))
}

// StoredSchemaVersion returns the recorded version and whether one exists.
func StoredSchemaVersion(kv KV) (uint32, bool, error) {
	var stored uint64
	ok, err := kv.KVGet(schemaVersionKey, &stored)
	if err != nil || !ok {
		return 0, false, err
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureSchemaVersion verifies the stored version matches SchemaVersion. A
// missing version is treated as 0.
func EnsureSchemaVersion(kv KV) error {
	version, _, err := StoredSchemaVersion(kv)
	if err != nil {
		return err
	}
	if version != SchemaVersion {
		return fmt.Errorf("%w: on-disk=%d expected=%d", ErrSchemaVersionMismatch, version, SchemaVersion)
	}
	return nil
}
