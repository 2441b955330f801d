package keydir

import (
	"bytes"
	"sync"

	"github.com/bitask/bitask/model"

	"github.com/google/btree"
)

var _ Keydir = (*BTree)(nil)

const btreeDegree = 32

// BTree is the default keydir. It owns its entries: positions are
// stored by value and copied back out on Get, so a caller can never
// alias the directory's internal state. An RWMutex serializes writers
// against readers and iterator snapshots.
type BTree struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// entry is the stored form of one key's locator.
type entry struct {
	key []byte
	pos model.RecordPos
}

func (e *entry) Less(than btree.Item) bool {
	return bytes.Compare(e.key, than.(*entry).key) < 0
}

func NewBTree(degree int) *BTree {
	if degree <= 0 {
		degree = btreeDegree
	}
	return &BTree{tree: btree.New(degree)}
}

// Put records pos as the latest locator for key and reports whether an
// earlier entry was replaced.
func (bt *BTree) Put(key []byte, pos *model.RecordPos) bool {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	prev := bt.tree.ReplaceOrInsert(&entry{key: append([]byte(nil), key...), pos: *pos})
	return prev != nil
}

// Get returns a copy of the locator stored for key, or nil.
func (bt *BTree) Get(key []byte) *model.RecordPos {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	found := bt.tree.Get(&entry{key: key})
	if found == nil {
		return nil
	}
	pos := found.(*entry).pos
	return &pos
}

func (bt *BTree) Delete(key []byte) bool {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.tree.Delete(&entry{key: key}) != nil
}

func (bt *BTree) Size() int {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return bt.tree.Len()
}

func (bt *BTree) Close() error {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.tree.Clear(false)
	return nil
}

// Iterator materializes a point-in-time snapshot of the directory,
// sorted by raw key bytes. Keys and locators are copied out under the
// read lock, so compaction and ListKeys can walk the snapshot
// while writers keep mutating the live tree.
func (bt *BTree) Iterator() Iterator {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	snap := &btreeIterator{
		keys:      make([][]byte, 0, bt.tree.Len()),
		positions: make([]model.RecordPos, 0, bt.tree.Len()),
	}
	bt.tree.Ascend(func(item btree.Item) bool {
		e := item.(*entry)
		snap.keys = append(snap.keys, append([]byte(nil), e.key...))
		snap.positions = append(snap.positions, e.pos)
		return true
	})
	return snap
}

type btreeIterator struct {
	keys      [][]byte
	positions []model.RecordPos
	idx       int
}

func (it *btreeIterator) Rewind() {
	it.idx = 0
}

func (it *btreeIterator) Next() {
	it.idx++
}

func (it *btreeIterator) Valid() bool {
	return it.idx < len(it.keys)
}

func (it *btreeIterator) Key() []byte {
	return it.keys[it.idx]
}

func (it *btreeIterator) Value() *model.RecordPos {
	return &it.positions[it.idx]
}

func (it *btreeIterator) Close() {
	it.keys = nil
	it.positions = nil
}
