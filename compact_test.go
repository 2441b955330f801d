package bitask

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_Compact_Empty(t *testing.T) {
	db, err := Open(t.TempDir())
	require.Nil(t, err)
	defer db.Close()

	assert.Nil(t, db.Compact())
	assert.Equal(t, 0, len(db.ListKeys()))
}

func TestDB_Compact_AllLive(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataFileSize(1024))
	require.Nil(t, err)
	defer db.Close()

	for i := 0; i < 50; i++ {
		require.Nil(t, db.Put([]byte(fmt.Sprintf("key-%03d", i)), []byte(fmt.Sprintf("value-%03d", i))))
	}

	require.Nil(t, db.Compact())

	assert.Equal(t, 50, len(db.ListKeys()))
	for i := 0; i < 50; i++ {
		value, err := db.Ask([]byte(fmt.Sprintf("key-%03d", i)))
		require.Nil(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("value-%03d", i)), value)
	}
}

func TestDB_Compact_DropsObsoleteRecords(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataFileSize(2048))
	require.Nil(t, err)
	defer db.Close()

	value := make([]byte, 100)
	for round := 0; round < 10; round++ {
		for i := 0; i < 20; i++ {
			require.Nil(t, db.Put([]byte(fmt.Sprintf("key-%03d", i)), value))
		}
	}

	before := logBytes(t, dir)
	require.Nil(t, db.Compact())
	after := logBytes(t, dir)

	// nine of ten versions of every key are gone
	assert.Less(t, after, before/2)

	for i := 0; i < 20; i++ {
		got, err := db.Ask([]byte(fmt.Sprintf("key-%03d", i)))
		require.Nil(t, err)
		assert.Equal(t, value, got)
	}
}

func TestDB_Compact_DropsTombstones(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataFileSize(512))
	require.Nil(t, err)
	defer db.Close()

	for i := 0; i < 20; i++ {
		require.Nil(t, db.Put([]byte(fmt.Sprintf("key-%03d", i)), []byte("value")))
	}
	for i := 0; i < 10; i++ {
		require.Nil(t, db.Remove([]byte(fmt.Sprintf("key-%03d", i))))
	}

	require.Nil(t, db.Compact())

	for i := 0; i < 10; i++ {
		_, err := db.Ask([]byte(fmt.Sprintf("key-%03d", i)))
		assert.ErrorIs(t, err, ErrNoRecord)
	}
	for i := 10; i < 20; i++ {
		value, err := db.Ask([]byte(fmt.Sprintf("key-%03d", i)))
		require.Nil(t, err)
		assert.Equal(t, []byte("value"), value)
	}
}

func TestDB_Compact_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataFileSize(512))
	require.Nil(t, err)

	for round := 0; round < 3; round++ {
		for i := 0; i < 20; i++ {
			require.Nil(t, db.Put([]byte(fmt.Sprintf("key-%03d", i)), []byte(fmt.Sprintf("v%d-%03d", round, i))))
		}
	}
	require.Nil(t, db.Remove([]byte("key-000")))
	require.Nil(t, db.Compact())
	require.Nil(t, db.Close())

	db, err = Open(dir, WithDataFileSize(512))
	require.Nil(t, err)
	defer db.Close()

	_, err = db.Ask([]byte("key-000"))
	assert.ErrorIs(t, err, ErrNoRecord)
	for i := 1; i < 20; i++ {
		value, err := db.Ask([]byte(fmt.Sprintf("key-%03d", i)))
		require.Nil(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("v2-%03d", i)), value)
	}
}

func TestDB_Compact_Idempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataFileSize(512))
	require.Nil(t, err)
	defer db.Close()

	for i := 0; i < 20; i++ {
		require.Nil(t, db.Put([]byte(fmt.Sprintf("key-%03d", i)), []byte("value")))
	}

	require.Nil(t, db.Compact())
	firstBytes := logBytes(t, dir)
	firstKeys := len(db.ListKeys())

	require.Nil(t, db.Compact())
	assert.Equal(t, firstKeys, len(db.ListKeys()))
	// a second compaction never grows the store
	assert.LessOrEqual(t, logBytes(t, dir), firstBytes)

	for i := 0; i < 20; i++ {
		value, err := db.Ask([]byte(fmt.Sprintf("key-%03d", i)))
		require.Nil(t, err)
		assert.Equal(t, []byte("value"), value)
	}
}

func TestDB_Compact_WritesKeepWorking(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataFileSize(512))
	require.Nil(t, err)
	defer db.Close()

	for i := 0; i < 20; i++ {
		require.Nil(t, db.Put([]byte(fmt.Sprintf("key-%03d", i)), []byte("old")))
	}
	require.Nil(t, db.Compact())

	require.Nil(t, db.Put([]byte("key-000"), []byte("new")))
	value, err := db.Ask([]byte("key-000"))
	require.Nil(t, err)
	assert.Equal(t, []byte("new"), value)

	require.Nil(t, db.Remove([]byte("key-001")))
	_, err = db.Ask([]byte("key-001"))
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestDB_Compact_RotatesMergeFiles(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataFileSize(512))
	require.Nil(t, err)
	defer db.Close()

	value := make([]byte, 100)
	for i := 0; i < 30; i++ {
		require.Nil(t, db.Put([]byte(fmt.Sprintf("key-%03d", i)), value))
	}

	require.Nil(t, db.Compact())

	// ~127 bytes per live record against a 512 byte threshold needs
	// several merge outputs
	active, sealed := countLogFiles(t, dir)
	assert.Equal(t, 1, active)
	assert.Greater(t, sealed, 1)

	for i := 0; i < 30; i++ {
		got, err := db.Ask([]byte(fmt.Sprintf("key-%03d", i)))
		require.Nil(t, err)
		assert.Equal(t, value, got)
	}
}
