package fio

import "os"

// FileIO is the default implement for IOManager
type FileIO struct {
	fd       *os.File
	readonly bool
}

func NewFileIO(file string) (*FileIO, error) {
	fd, err := os.OpenFile(file, os.O_APPEND|os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &FileIO{fd: fd}, nil
}

// NewFileIOExclusive creates the file and fails if it already exists.
func NewFileIOExclusive(file string) (*FileIO, error) {
	fd, err := os.OpenFile(file, os.O_APPEND|os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	return &FileIO{fd: fd}, nil
}

// NewFileIOReadonly opens an existing file for reads only.
func NewFileIOReadonly(file string) (*FileIO, error) {
	fd, err := os.OpenFile(file, os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileIO{fd: fd, readonly: true}, nil
}

func (fio *FileIO) Read(buf []byte, offset int64) (int, error) {
	return fio.fd.ReadAt(buf, offset)
}

func (fio *FileIO) Write(data []byte) (int, error) {
	if fio.readonly {
		return 0, ErrReadOnly
	}
	return fio.fd.Write(data)
}

func (fio *FileIO) Sync() error {
	if fio.readonly {
		return nil
	}
	return fio.fd.Sync()
}

func (fio *FileIO) Close() error {
	return fio.fd.Close()
}

func (fio *FileIO) Size() (int64, error) {
	stat, err := fio.fd.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

func (fio *FileIO) Truncate(size int64) error {
	if fio.readonly {
		return ErrReadOnly
	}
	return fio.fd.Truncate(size)
}
