package application

import (
	"encoding/binary"
	"fmt"

	"github.com/ericfisherdev/passvault/internal/domain/model"
)

// Namespace keys of the persisted partitions. They are part of the on-disk
// format and must not change.
var (
	userIndexPrefix    = []byte("apu/")
	accountTablePrefix = []byte("abi/")
	counterKey         = []byte("cnt")
	ownerKey           = []byte("own")
)

func userIndexKey(user model.UserID) []byte {
	key := make([]byte, 0, len(userIndexPrefix)+len(user))
	key = append(key, userIndexPrefix...)
	return append(key, user...)
}

func accountKey(id model.AccountID) []byte {
	key := make([]byte, len(accountTablePrefix)+8)
	copy(key, accountTablePrefix)
	binary.BigEndian.PutUint64(key[len(accountTablePrefix):], uint64(id))
	return key
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: counter is %d bytes, want 8", ErrCorruptState, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// encodeAccount serialises a record as
// id(u64) | user | website | username | password, each string u32-length prefixed.
func encodeAccount(a model.Account) []byte {
	size := 8 + 4*4 + len(a.UserID) + len(a.Website) + len(a.Username) + len(a.Password)
	b := make([]byte, 8, size)
	binary.BigEndian.PutUint64(b, uint64(a.ID))
	for _, s := range []string{string(a.UserID), a.Website, a.Username, a.Password} {
		b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
		b = append(b, s...)
	}
	return b
}

func decodeAccount(b []byte) (model.Account, error) {
	var a model.Account
	if len(b) < 8 {
		return a, fmt.Errorf("%w: account record truncated", ErrCorruptState)
	}
	a.ID = model.AccountID(binary.BigEndian.Uint64(b))
	rest := b[8:]

	fields := make([]string, 4)
	for i := range fields {
		if len(rest) < 4 {
			return a, fmt.Errorf("%w: account %d truncated at field %d", ErrCorruptState, a.ID, i)
		}
		n := binary.BigEndian.Uint32(rest)
		rest = rest[4:]
		if uint64(len(rest)) < uint64(n) {
			return a, fmt.Errorf("%w: account %d field %d overruns record", ErrCorruptState, a.ID, i)
		}
		fields[i] = string(rest[:n])
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return a, fmt.Errorf("%w: account %d has %d trailing bytes", ErrCorruptState, a.ID, len(rest))
	}

	a.UserID = model.UserID(fields[0])
	a.Website = fields[1]
	a.Username = fields[2]
	a.Password = fields[3]
	return a, nil
}

// encodeIDSet serialises an id set as count(u32) followed by the ids in order.
func encodeIDSet(ids []model.AccountID) []byte {
	b := make([]byte, 4, 4+8*len(ids))
	binary.BigEndian.PutUint32(b, uint32(len(ids)))
	for _, id := range ids {
		b = binary.BigEndian.AppendUint64(b, uint64(id))
	}
	return b
}

func decodeIDSet(b []byte) ([]model.AccountID, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: id set truncated", ErrCorruptState)
	}
	n := binary.BigEndian.Uint32(b)
	b = b[4:]
	if uint64(len(b)) != 8*uint64(n) {
		return nil, fmt.Errorf("%w: id set declares %d ids in %d bytes", ErrCorruptState, n, len(b))
	}
	ids := make([]model.AccountID, n)
	for i := range ids {
		ids[i] = model.AccountID(binary.BigEndian.Uint64(b[8*i:]))
	}
	return ids, nil
}
