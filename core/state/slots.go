package state

// Slot is a single typed value stored under a contract namespace.
type Slot[V any] struct {
	kv  KV
	key []byte
}

// NewSlot binds a slot named name inside the namespace of contract ns.
func NewSlot[V any](kv KV, ns [20]byte, name string) *Slot[V] {
	return &Slot[V]{kv: kv, key: namespacedKey(ns, name, nil)}
}

// Get returns the stored value and whether it exists.
func (s *Slot[V]) Get() (V, bool, error) {
	var v V
	ok, err := s.kv.KVGet(s.key, &v)
	if err != nil || !ok {
		var zero V
		return zero, false, err
	}
	return v, true, nil
}

// Has reports whether a value has been stored.
func (s *Slot[V]) Has() (bool, error) {
	return s.kv.KVGet(s.key, nil)
}

// Put overwrites the stored value.
func (s *Slot[V]) Put(v V) error {
	return s.kv.KVPut(s.key, v)
}

// Map is a typed mapping stored under a contract namespace. Entries are never
// removed; absent keys read as the zero value with ok == false.
type Map[K any, V any] struct {
	kv        KV
	ns        [20]byte
	name      string
	encodeKey func(K) []byte
}

// NewMap binds a mapping named name inside the namespace of contract ns.
func NewMap[K any, V any](kv KV, ns [20]byte, name string, encodeKey func(K) []byte) *Map[K, V] {
	return &Map[K, V]{kv: kv, ns: ns, name: name, encodeKey: encodeKey}
}

func (m *Map[K, V]) key(k K) []byte {
	return namespacedKey(m.ns, m.name, m.encodeKey(k))
}

// Get returns the value stored for k and whether it exists.
func (m *Map[K, V]) Get(k K) (V, bool, error) {
	var v V
	ok, err := m.kv.KVGet(m.key(k), &v)
	if err != nil || !ok {
		var zero V
		return zero, false, err
	}
	return v, true, nil
}

// Put stores v for k.
func (m *Map[K, V]) Put(k K, v V) error {
	return m.kv.KVPut(m.key(k), v)
}

// AddressKey encodes a 20-byte identity as a map key.
func AddressKey(addr [20]byte) []byte {
	return addr[:]
}

func namespacedKey(ns [20]byte, name string, suffix []byte) []byte {
	buf := make([]byte, 0, len(ns)+1+len(name)+1+len(suffix))
	buf = append(buf, ns[:]...)
	buf = append(buf, ':')
	buf = append(buf, name...)
	if len(suffix) > 0 {
		buf = append(buf, ':')
		buf = append(buf, suffix...)
	}
	return buf
}
