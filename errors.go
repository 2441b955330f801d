package bitask

import (
	"fmt"
)

var (
	ErrEmptyKey   = addPrefix("the key is empty")
	ErrEmptyValue = addPrefix("empty value is reserved for tombstones")
	ErrNoRecord   = addPrefix("no record in keydir")

	ErrWriterLock        = addPrefix("another process holds the writer lock")
	ErrNoDataFile        = addPrefix("no data file")
	ErrDataFileCorrupted = addPrefix("data file may be corrupted")
	ErrDBClosed          = addPrefix("db is closed")
)

func addPrefix(errStr string) error {
	return fmt.Errorf("bitask err: %s", errStr)
}
