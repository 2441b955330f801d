package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bitask/bitask/fio"
)

const (
	SealedFileSuffix = ".log"
	ActiveFileSuffix = ".active.log"
)

func ActiveFileName(dir string, fid uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", fid, ActiveFileSuffix))
}

func SealedFileName(dir string, fid uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", fid, SealedFileSuffix))
}

// ParseFileID extracts the file id from a log file name and reports
// whether the file is active. Names without a log suffix return an
// error so the caller can reject foreign files.
func ParseFileID(name string) (fid uint64, active bool, err error) {
	base := name
	switch {
	case strings.HasSuffix(base, ActiveFileSuffix):
		active = true
		base = strings.TrimSuffix(base, ActiveFileSuffix)
	case strings.HasSuffix(base, SealedFileSuffix):
		base = strings.TrimSuffix(base, SealedFileSuffix)
	default:
		return 0, false, fmt.Errorf("not a log file: %s", name)
	}

	fid, err = strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid log file name %s: %w", name, err)
	}
	return fid, active, nil
}

// LogFile is one append-only file on disk. Exactly one LogFile per
// open database is active; the rest are sealed and read-only.
type LogFile struct {
	Fid         uint64
	Dir         string
	Sealed      bool
	WriteOffset int64
	IoManager   fio.IOManager
}

// CreateActiveFile creates <fid>.active.log, failing if it exists.
func CreateActiveFile(dir string, fid uint64) (*LogFile, error) {
	ioManager, err := fio.NewFileIOExclusive(ActiveFileName(dir, fid))
	if err != nil {
		return nil, err
	}
	return &LogFile{Fid: fid, Dir: dir, IoManager: ioManager}, nil
}

// OpenActiveFile reopens an existing active file for appends, as found
// after a crash or clean close. The write offset resumes at file end.
func OpenActiveFile(dir string, fid uint64) (*LogFile, error) {
	ioManager, err := fio.NewFileIO(ActiveFileName(dir, fid))
	if err != nil {
		return nil, err
	}
	size, err := ioManager.Size()
	if err != nil {
		_ = ioManager.Close()
		return nil, err
	}
	return &LogFile{Fid: fid, Dir: dir, WriteOffset: size, IoManager: ioManager}, nil
}

// OpenSealedFile opens <fid>.log read-only through the given creator.
func OpenSealedFile(dir string, fid uint64, creator fio.IOManagerCreator) (*LogFile, error) {
	ioManager, err := creator(SealedFileName(dir, fid), true)
	if err != nil {
		return nil, err
	}
	return &LogFile{Fid: fid, Dir: dir, Sealed: true, IoManager: ioManager}, nil
}

// Path returns the file's current on-disk location.
func (lf *LogFile) Path() string {
	if lf.Sealed {
		return SealedFileName(lf.Dir, lf.Fid)
	}
	return ActiveFileName(lf.Dir, lf.Fid)
}

// Append writes data at the end of the file and returns the offset the
// record starts at.
func (lf *LogFile) Append(data []byte) (int64, error) {
	if lf.Sealed {
		return 0, fio.ErrReadOnly
	}
	offset := lf.WriteOffset
	if _, err := lf.IoManager.Write(data); err != nil {
		return 0, err
	}
	lf.WriteOffset += int64(len(data))
	return offset, nil
}

// ReadValue does a positional read of size bytes at offset.
func (lf *LogFile) ReadValue(offset int64, size uint32) ([]byte, error) {
	return lf.readNBytes(offset, int64(size))
}

// ReadRecordHeader returns up to HeaderSize bytes at offset, clipped
// to the end of the file so a torn tail surfaces as a short buffer.
func (lf *LogFile) ReadRecordHeader(offset int64) ([]byte, error) {
	fileSize, err := lf.IoManager.Size()
	if err != nil {
		return nil, err
	}

	var n int64 = HeaderSize
	if offset+n > fileSize {
		n = fileSize - offset
	}
	if n <= 0 {
		return nil, nil
	}
	return lf.readNBytes(offset, n)
}

func (lf *LogFile) readNBytes(offset, n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := lf.IoManager.Read(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// Seal closes the file for writes and renames it to its sealed name.
// The rename stays within the database directory, so the open handle
// remains valid for reads.
func (lf *LogFile) Seal() (string, error) {
	if lf.Sealed {
		return lf.Path(), nil
	}
	if err := lf.IoManager.Sync(); err != nil {
		return "", err
	}
	sealedPath := SealedFileName(lf.Dir, lf.Fid)
	if err := os.Rename(ActiveFileName(lf.Dir, lf.Fid), sealedPath); err != nil {
		return "", err
	}
	lf.Sealed = true
	return sealedPath, nil
}

// Truncate cuts the file to size. Used on recovery to drop a torn
// tail from the active file before appends resume.
func (lf *LogFile) Truncate(size int64) error {
	if err := lf.IoManager.Truncate(size); err != nil {
		return err
	}
	lf.WriteOffset = size
	return nil
}

func (lf *LogFile) Size() (int64, error) {
	return lf.IoManager.Size()
}

func (lf *LogFile) Sync() error {
	return lf.IoManager.Sync()
}

func (lf *LogFile) Close() error {
	return lf.IoManager.Close()
}

// Remove closes the file and unlinks it from disk.
func (lf *LogFile) Remove() error {
	if err := lf.IoManager.Close(); err != nil {
		return err
	}
	return os.Remove(lf.Path())
}
