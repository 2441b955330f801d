package keydir

import "github.com/bitask/bitask/model"

// Keydir maps keys to the location of their most recent live record.
// Implementations own their entries: Get hands back a copy, and Put
// must not retain the caller's RecordPos.
type Keydir interface {
	// Put records pos for key, reporting whether a previous entry
	// was replaced
	Put(key []byte, pos *model.RecordPos) bool
	Get(key []byte) *model.RecordPos
	Delete(key []byte) bool
	Size() int
	Iterator() Iterator
	Close() error
}

// Iterator walks a snapshot of the keydir taken at creation time;
// later writes never show through it.
type Iterator interface {
	Rewind()
	Next()
	Valid() bool
	Key() []byte
	Value() *model.RecordPos
	Close()
}
