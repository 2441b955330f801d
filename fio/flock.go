package fio

import (
	"path/filepath"

	"github.com/gofrs/flock"
)

type FileLocker interface {
	TryLock() (bool, error)
	Unlock() error
}

// LockFileName is the sentinel file guarded by the advisory lock.
// Its contents are never read.
const LockFileName = "db.lock"

func NewFlock(dirPath string) *flock.Flock {
	return flock.New(filepath.Join(dirPath, LockFileName))
}
