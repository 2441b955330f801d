package keydir

import (
	"fmt"
	"testing"

	"github.com/bitask/bitask/model"

	"github.com/stretchr/testify/assert"
)

func TestBTree_Put(t *testing.T) {
	bt := NewBTree(0)

	replaced := bt.Put([]byte("key"), &model.RecordPos{Fid: 1, Offset: 10})
	assert.False(t, replaced)
	assert.Equal(t, 1, bt.Size())

	// overwrite keeps a single entry and reports the replacement
	replaced = bt.Put([]byte("key"), &model.RecordPos{Fid: 2, Offset: 20})
	assert.True(t, replaced)
	assert.Equal(t, 1, bt.Size())

	pos := bt.Get([]byte("key"))
	assert.Equal(t, uint64(2), pos.Fid)
	assert.Equal(t, int64(20), pos.Offset)
}

func TestBTree_Get(t *testing.T) {
	bt := NewBTree(0)

	assert.Nil(t, bt.Get([]byte("missing")))

	bt.Put([]byte("key"), &model.RecordPos{Fid: 1, Offset: 10, Size: 5})
	pos := bt.Get([]byte("key"))
	assert.NotNil(t, pos)
	assert.Equal(t, uint32(5), pos.Size)
}

func TestBTree_GetReturnsCopy(t *testing.T) {
	bt := NewBTree(0)
	bt.Put([]byte("key"), &model.RecordPos{Fid: 1, Offset: 10})

	// mutating what Get hands back must not touch the stored entry
	pos := bt.Get([]byte("key"))
	pos.Fid = 99
	pos.Offset = 999

	again := bt.Get([]byte("key"))
	assert.Equal(t, uint64(1), again.Fid)
	assert.Equal(t, int64(10), again.Offset)
}

func TestBTree_PutIsDetachedFromCaller(t *testing.T) {
	bt := NewBTree(0)

	pos := &model.RecordPos{Fid: 1, Offset: 10}
	bt.Put([]byte("key"), pos)

	// the caller keeps ownership of its own struct
	pos.Offset = 999
	assert.Equal(t, int64(10), bt.Get([]byte("key")).Offset)
}

func TestBTree_Delete(t *testing.T) {
	bt := NewBTree(0)

	assert.False(t, bt.Delete([]byte("missing")))

	bt.Put([]byte("key"), &model.RecordPos{Fid: 1})
	assert.True(t, bt.Delete([]byte("key")))
	assert.Nil(t, bt.Get([]byte("key")))
	assert.Equal(t, 0, bt.Size())
}

func TestBTree_Iterator(t *testing.T) {
	bt := NewBTree(0)

	it := bt.Iterator()
	assert.False(t, it.Valid())
	it.Close()

	for i := 9; i >= 0; i-- {
		bt.Put([]byte(fmt.Sprintf("key-%d", i)), &model.RecordPos{Fid: uint64(i)})
	}

	it = bt.Iterator()
	defer it.Close()

	var keys []string
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
		assert.NotNil(t, it.Value())
	}
	assert.Equal(t, 10, len(keys))

	// iteration is sorted by raw key bytes
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}

func TestBTree_IteratorIsSnapshot(t *testing.T) {
	bt := NewBTree(0)
	bt.Put([]byte("a"), &model.RecordPos{Fid: 1, Offset: 10})
	bt.Put([]byte("b"), &model.RecordPos{Fid: 1, Offset: 20})

	it := bt.Iterator()
	defer it.Close()

	// writes and overwrites after the snapshot are invisible to it
	bt.Put([]byte("z"), &model.RecordPos{Fid: 9})
	bt.Put([]byte("a"), &model.RecordPos{Fid: 5, Offset: 50})
	bt.Delete([]byte("b"))

	count := 0
	for it.Rewind(); it.Valid(); it.Next() {
		count++
		if string(it.Key()) == "a" {
			assert.Equal(t, uint64(1), it.Value().Fid)
			assert.Equal(t, int64(10), it.Value().Offset)
		}
	}
	assert.Equal(t, 2, count)
}
