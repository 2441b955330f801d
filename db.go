package bitask

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bitask/bitask/codec"
	"github.com/bitask/bitask/fio"
	"github.com/bitask/bitask/keydir"
	"github.com/bitask/bitask/metrics"
	"github.com/bitask/bitask/model"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// DB is a Bitcask-style key-value store: an append-only log on disk
// plus an in-memory keydir locating the newest record of every key.
// One DB instance owns its directory exclusively via an advisory file
// lock; all operations are safe for concurrent use within a process.
type DB struct {
	mu sync.RWMutex

	dir      string
	fileLock *flock.Flock

	activeFile *model.LogFile            // data will append to active data file
	olderFiles map[uint64]*model.LogFile // sealed files, read only

	keydir keydir.Keydir

	lastFid uint64
	closed  bool

	options *options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Open acquires the writer lock on dir, replays every log file into
// the keydir and leaves the database ready for reads and writes.
// The directory is created if it does not exist.
func Open(dir string, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	fileLock := fio.NewFlock(dir)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	if !locked {
		return nil, ErrWriterLock
	}

	db := &DB{
		dir:        dir,
		fileLock:   fileLock,
		olderFiles: make(map[uint64]*model.LogFile),
		keydir:     o.keydirCreator(),
		options:    o,
		logger:     o.logger,
		metrics:    metrics.NewMetrics(o.registerer),
	}

	if err = db.loadDataFiles(); err != nil {
		_ = fileLock.Unlock()
		return nil, err
	}

	if db.activeFile == nil {
		if err = db.setActiveDataFile(); err != nil {
			_ = fileLock.Unlock()
			return nil, err
		}
	}

	db.metrics.Keys.Set(float64(db.keydir.Size()))
	db.metrics.SealedFiles.Set(float64(len(db.olderFiles)))
	db.metrics.ActiveFileBytes.Set(float64(db.activeFile.WriteOffset))

	db.logger.Info("db opened",
		zap.String("dir", dir),
		zap.Int("keys", db.keydir.Size()),
		zap.Int("sealed_files", len(db.olderFiles)))

	return db, nil
}

// Put stores a key-value pair, fsync'd before it returns.
// Empty values are rejected: a zero-length value on disk is the
// tombstone marker.
func (db *DB) Put(key []byte, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(value) == 0 {
		return ErrEmptyValue
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDBClosed
	}

	record := &model.Record{
		Key:       key,
		Value:     value,
		Timestamp: nowMs(),
	}
	pos, err := db.appendRecord(record)
	if err != nil {
		return err
	}

	db.keydir.Put(key, pos)

	db.metrics.PutsTotal.Inc()
	db.metrics.Keys.Set(float64(db.keydir.Size()))
	return nil
}

// Ask returns the value stored under key.
func (db *DB) Ask(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrDBClosed
	}

	pos := db.keydir.Get(key)
	if pos == nil {
		return nil, ErrNoRecord
	}

	dataFile := db.fileByFid(pos.Fid)
	if dataFile == nil {
		return nil, ErrNoDataFile
	}

	value, err := dataFile.ReadValue(pos.Offset, pos.Size)
	if err != nil {
		return nil, fmt.Errorf("read value: %w", err)
	}

	db.metrics.AsksTotal.Inc()
	return value, nil
}

// Remove deletes key by appending a tombstone. Removing an absent key
// returns ErrNoRecord and writes nothing.
func (db *DB) Remove(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDBClosed
	}

	if db.keydir.Get(key) == nil {
		return ErrNoRecord
	}

	record := &model.Record{
		Key:       key,
		Timestamp: nowMs(),
	}
	if _, err := db.appendRecord(record); err != nil {
		return err
	}

	db.keydir.Delete(key)

	db.metrics.RemovesTotal.Inc()
	db.metrics.Keys.Set(float64(db.keydir.Size()))
	return nil
}

// ListKeys returns every live key, ordered by raw bytes.
func (db *DB) ListKeys() [][]byte {
	db.mu.RLock()
	defer db.mu.RUnlock()

	it := db.keydir.Iterator()
	defer it.Close()

	keys := make([][]byte, 0, db.keydir.Size())
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Key())
	}
	return keys
}

// Sync flushes the active file to disk.
func (db *DB) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDBClosed
	}
	return db.activeFile.Sync()
}

// Close flushes the active file, drops all handles and releases the
// writer lock.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	if err := db.activeFile.Sync(); err != nil {
		return err
	}
	if err := db.activeFile.Close(); err != nil {
		return err
	}
	for _, dataFile := range db.olderFiles {
		if err := dataFile.Close(); err != nil {
			return err
		}
	}

	if err := db.keydir.Close(); err != nil {
		return err
	}

	return db.fileLock.Unlock()
}

// appendRecord encodes record, appends it to the active file, fsyncs
// and rotates when the active file crossed the size threshold.
// Callers must hold db.mu.
func (db *DB) appendRecord(record *model.Record) (*model.RecordPos, error) {
	data, _, err := db.options.codec.MarshalRecord(record)
	if err != nil {
		return nil, err
	}

	start, err := db.activeFile.Append(data)
	if err != nil {
		return nil, fmt.Errorf("append record: %w", err)
	}

	// every completed write is durable before it is acknowledged
	if err = db.activeFile.Sync(); err != nil {
		return nil, fmt.Errorf("sync active file: %w", err)
	}

	pos := &model.RecordPos{
		Fid:       db.activeFile.Fid,
		Offset:    start + model.HeaderSize + int64(len(record.Key)),
		Size:      uint32(len(record.Value)),
		Timestamp: record.Timestamp,
	}

	// rotation is checked after the append, so one record may carry
	// the file past the threshold
	if db.activeFile.WriteOffset >= db.options.dataFileSize {
		if err = db.rotateActiveFile(); err != nil {
			return nil, err
		}
	}

	db.metrics.ActiveFileBytes.Set(float64(db.activeFile.WriteOffset))
	return pos, nil
}

// rotateActiveFile seals the current active file and starts a fresh
// one with a strictly greater file id. The sealed handle stays open:
// the rename keeps the inode, so existing keydir entries remain
// readable without reopening.
func (db *DB) rotateActiveFile() error {
	oldActive := db.activeFile
	if _, err := oldActive.Seal(); err != nil {
		return fmt.Errorf("seal active file: %w", err)
	}
	db.olderFiles[oldActive.Fid] = oldActive

	if err := db.setActiveDataFile(); err != nil {
		return err
	}

	db.logger.Debug("rotated active file",
		zap.Uint64("sealed_fid", oldActive.Fid),
		zap.Uint64("active_fid", db.activeFile.Fid))

	db.metrics.RotationsTotal.Inc()
	db.metrics.SealedFiles.Set(float64(len(db.olderFiles)))
	return nil
}

// setActiveDataFile creates a fresh active file with an unused id.
func (db *DB) setActiveDataFile() error {
	for {
		dataFile, err := model.CreateActiveFile(db.dir, db.nextFid())
		if err == nil {
			db.activeFile = dataFile
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create active file: %w", err)
		}
	}
}

// nextFid returns a millisecond timestamp strictly greater than every
// id handed out so far, advancing by one on collision.
func (db *DB) nextFid() uint64 {
	fid := nowMs()
	if fid <= db.lastFid {
		fid = db.lastFid + 1
	}
	db.lastFid = fid
	return fid
}

func (db *DB) fileByFid(fid uint64) *model.LogFile {
	if db.activeFile != nil && db.activeFile.Fid == fid {
		return db.activeFile
	}
	return db.olderFiles[fid]
}

// loadDataFiles enumerates the database directory, resolves any
// rotation crash leftovers, opens every log file and replays them in
// file id order.
func (db *DB) loadDataFiles() error {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return fmt.Errorf("read db dir: %w", err)
	}

	var activeFids, sealedFids []uint64
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == fio.LockFileName {
			continue
		}
		fid, active, err := model.ParseFileID(entry.Name())
		if err != nil {
			return fmt.Errorf("classify db dir entry: %w", err)
		}
		if active {
			activeFids = append(activeFids, fid)
		} else {
			sealedFids = append(sealedFids, fid)
		}
		if fid > db.lastFid {
			db.lastFid = fid
		}
	}

	// more than one active file means a crash interrupted a rotation
	// before the rename; every extra active is sealed and only the
	// greatest id stays writable
	sort.Slice(activeFids, func(i, j int) bool { return activeFids[i] < activeFids[j] })
	for len(activeFids) > 1 {
		fid := activeFids[0]
		activeFids = activeFids[1:]
		db.logger.Warn("sealing surplus active file left by a crash", zap.Uint64("fid", fid))
		if err = os.Rename(model.ActiveFileName(db.dir, fid), model.SealedFileName(db.dir, fid)); err != nil {
			return fmt.Errorf("seal surplus active file: %w", err)
		}
		sealedFids = append(sealedFids, fid)
	}

	for _, fid := range sealedFids {
		dataFile, err := model.OpenSealedFile(db.dir, fid, db.options.ioManagerCreator)
		if err != nil {
			return fmt.Errorf("open sealed file: %w", err)
		}
		db.olderFiles[fid] = dataFile
	}

	if len(activeFids) == 1 {
		dataFile, err := model.OpenActiveFile(db.dir, activeFids[0])
		if err != nil {
			return fmt.Errorf("open active file: %w", err)
		}
		db.activeFile = dataFile
	}

	files := make([]*model.LogFile, 0, len(db.olderFiles)+1)
	for _, dataFile := range db.olderFiles {
		files = append(files, dataFile)
	}
	if db.activeFile != nil {
		files = append(files, db.activeFile)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Fid < files[j].Fid })

	for _, dataFile := range files {
		if err = db.loadKeydirFromDataFile(dataFile); err != nil {
			return err
		}
	}
	return nil
}

// loadKeydirFromDataFile replays one log file record by record,
// applying the (timestamp, file id, offset) tie-break. A truncated
// record ends the scan: on the active file it is a torn tail from a
// crash and is cut off, on a sealed file the trailing bytes stay in
// place until compaction discards them. A crc mismatch aborts
// recovery.
func (db *DB) loadKeydirFromDataFile(dataFile *model.LogFile) error {
	fileSize, err := dataFile.Size()
	if err != nil {
		return fmt.Errorf("stat data file: %w", err)
	}

	var offset int64
	for offset < fileSize {
		record, header, size, err := db.readRecordAt(dataFile, offset, fileSize)
		if err != nil {
			if errors.Is(err, codec.ErrTruncatedRecord) {
				return db.handleTruncatedTail(dataFile, offset)
			}
			if errors.Is(err, codec.ErrCorruptRecord) {
				db.logger.Error("corrupt record during recovery",
					zap.Uint64("fid", dataFile.Fid),
					zap.Int64("offset", offset))
				return ErrDataFileCorrupted
			}
			return err
		}

		if header.Tombstone() {
			tombstone := &model.RecordPos{
				Fid:       dataFile.Fid,
				Offset:    offset,
				Timestamp: header.Timestamp,
			}
			if existing := db.keydir.Get(record.Key); existing != nil && existing.Before(tombstone) {
				db.keydir.Delete(record.Key)
			}
		} else {
			pos := &model.RecordPos{
				Fid:       dataFile.Fid,
				Offset:    offset + model.HeaderSize + int64(header.KeySize),
				Size:      header.ValueSize,
				Timestamp: header.Timestamp,
			}
			if existing := db.keydir.Get(record.Key); existing == nil || existing.Before(pos) {
				db.keydir.Put(record.Key, pos)
			}
		}

		offset += size
	}
	return nil
}

// readRecordAt decodes one record, validating declared lengths against
// the remaining file size before any payload allocation.
func (db *DB) readRecordAt(dataFile *model.LogFile, offset, fileSize int64) (*model.Record, *model.RecordHeader, int64, error) {
	headerData, err := dataFile.ReadRecordHeader(offset)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read record header: %w", err)
	}

	header := new(model.RecordHeader)
	if err = db.options.codec.UnmarshalRecordHeader(headerData, header); err != nil {
		return nil, nil, 0, err
	}

	size := model.HeaderSize + int64(header.KeySize) + int64(header.ValueSize)
	if offset+size > fileSize {
		return nil, nil, 0, codec.ErrTruncatedRecord
	}

	body, err := dataFile.ReadValue(offset+model.HeaderSize, header.KeySize+header.ValueSize)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read record body: %w", err)
	}

	record := new(model.Record)
	if err = db.options.codec.UnmarshalRecord(headerData, body, header, record); err != nil {
		return nil, nil, 0, err
	}
	return record, header, size, nil
}

func (db *DB) handleTruncatedTail(dataFile *model.LogFile, offset int64) error {
	if dataFile.Sealed {
		db.logger.Warn("sealed file has a truncated tail, ignoring trailing bytes",
			zap.Uint64("fid", dataFile.Fid),
			zap.Int64("offset", offset))
		return nil
	}

	// torn tail from a crash mid-append: cut it off so the next append
	// does not bury garbage between records
	db.logger.Warn("truncating torn tail on active file",
		zap.Uint64("fid", dataFile.Fid),
		zap.Int64("offset", offset))
	if err := dataFile.Truncate(offset); err != nil {
		return fmt.Errorf("truncate torn tail: %w", err)
	}
	return nil
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
