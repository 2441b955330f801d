package bitask

import (
	"fmt"

	"github.com/bitask/bitask/model"

	"go.uber.org/zap"
)

// Compact rewrites every live record into a fresh set of merge files
// and unlinks the old ones, dropping obsolete versions and tombstones.
// It is synchronous and blocks every other operation while it runs.
// On failure the partial outputs are discarded and the pre-compaction
// state is left untouched.
func (db *DB) Compact() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDBClosed
	}

	// snapshot the keydir before anything moves
	type liveEntry struct {
		key []byte
		pos *model.RecordPos
	}
	it := db.keydir.Iterator()
	snapshot := make([]liveEntry, 0, db.keydir.Size())
	for it.Rewind(); it.Valid(); it.Next() {
		snapshot = append(snapshot, liveEntry{key: it.Key(), pos: it.Value()})
	}
	it.Close()

	// seal the active file and start a fresh one, so compaction only
	// ever touches sealed files and the new active survives the swap
	oldActive := db.activeFile
	if _, err := oldActive.Seal(); err != nil {
		return fmt.Errorf("seal active file: %w", err)
	}
	db.olderFiles[oldActive.Fid] = oldActive
	if err := db.setActiveDataFile(); err != nil {
		return err
	}

	preFiles := make(map[uint64]*model.LogFile, len(db.olderFiles))
	for fid, dataFile := range db.olderFiles {
		preFiles[fid] = dataFile
	}

	newKeydir := db.options.keydirCreator()
	var mergeFiles []*model.LogFile
	var current *model.LogFile

	discard := func() {
		for _, mergeFile := range mergeFiles {
			_ = mergeFile.Remove()
		}
		if current != nil {
			_ = current.Remove()
		}
		_ = newKeydir.Close()
	}

	// copy every live value into the merge outputs, carrying the
	// original timestamps so recovery keeps resolving conflicts the
	// same way
	for _, entry := range snapshot {
		srcFile := preFiles[entry.pos.Fid]
		if srcFile == nil {
			discard()
			return ErrNoDataFile
		}

		value, err := srcFile.ReadValue(entry.pos.Offset, entry.pos.Size)
		if err != nil {
			discard()
			return fmt.Errorf("read live value: %w", err)
		}

		record := &model.Record{
			Key:       entry.key,
			Value:     value,
			Timestamp: entry.pos.Timestamp,
		}
		data, _, err := db.options.codec.MarshalRecord(record)
		if err != nil {
			discard()
			return err
		}

		if current == nil {
			if current, err = db.newMergeFile(); err != nil {
				discard()
				return err
			}
		}

		start, err := current.Append(data)
		if err != nil {
			discard()
			return fmt.Errorf("append merge record: %w", err)
		}

		newKeydir.Put(entry.key, &model.RecordPos{
			Fid:       current.Fid,
			Offset:    start + model.HeaderSize + int64(len(entry.key)),
			Size:      entry.pos.Size,
			Timestamp: entry.pos.Timestamp,
		})

		if current.WriteOffset >= db.options.dataFileSize {
			mergeFiles = append(mergeFiles, current)
			current = nil
		}
	}
	if current != nil {
		mergeFiles = append(mergeFiles, current)
	}
	current = nil

	for _, mergeFile := range mergeFiles {
		if err := mergeFile.Sync(); err != nil {
			discard()
			return fmt.Errorf("sync merge file: %w", err)
		}
		if _, err := mergeFile.Seal(); err != nil {
			discard()
			return fmt.Errorf("seal merge file: %w", err)
		}
	}

	// the fresh active file holds no records yet; replace it so its id
	// is greater than every merge output and a later tombstone replays
	// after the merged record it deletes
	emptyActive := db.activeFile
	if err := db.setActiveDataFile(); err != nil {
		discard()
		return err
	}
	_ = emptyActive.Remove()

	// point of no return: swap the directory, then drop the old files
	_ = db.keydir.Close()
	db.keydir = newKeydir

	for fid, dataFile := range preFiles {
		delete(db.olderFiles, fid)
		if err := dataFile.Remove(); err != nil {
			db.logger.Warn("failed to unlink compacted file",
				zap.Uint64("fid", fid), zap.Error(err))
		}
	}
	for _, mergeFile := range mergeFiles {
		db.olderFiles[mergeFile.Fid] = mergeFile
	}

	db.logger.Info("compaction finished",
		zap.Int("live_records", len(snapshot)),
		zap.Int("files_removed", len(preFiles)),
		zap.Int("files_written", len(mergeFiles)))

	db.metrics.CompactionsTotal.Inc()
	db.metrics.SealedFiles.Set(float64(len(db.olderFiles)))
	db.metrics.ActiveFileBytes.Set(float64(db.activeFile.WriteOffset))
	return nil
}

// newMergeFile opens a merge output. Merge outputs use active-style
// names while being written and ids strictly greater than any existing
// file, so an interrupted compaction shows up at the next open as
// surplus active files holding duplicate records, which the tie-break
// resolves.
func (db *DB) newMergeFile() (*model.LogFile, error) {
	mergeFile, err := model.CreateActiveFile(db.dir, db.nextFid())
	if err != nil {
		return nil, fmt.Errorf("create merge file: %w", err)
	}
	return mergeFile, nil
}
