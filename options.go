package bitask

import (
	"github.com/bitask/bitask/codec"
	"github.com/bitask/bitask/fio"
	"github.com/bitask/bitask/keydir"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultDataFileSize is the rotation threshold for the active file.
// The threshold is checked after each append, so a file may exceed it
// by the size of the record that triggered rotation.
const DefaultDataFileSize = 4 * 1024 * 1024

type options struct {
	dataFileSize int64

	ioManagerCreator fio.IOManagerCreator
	codec            codec.Codec
	keydirCreator    func() keydir.Keydir

	logger     *zap.Logger
	registerer prometheus.Registerer
}

type Option func(*options)

func defaultOptions() *options {
	return &options{
		dataFileSize:     DefaultDataFileSize,
		ioManagerCreator: defaultIOManagerCreator,
		codec:            codec.NewCodecImpl(),
		keydirCreator:    func() keydir.Keydir { return keydir.NewBTree(0) },
		logger:           zap.NewNop(),
		registerer:       prometheus.NewRegistry(),
	}
}

var defaultIOManagerCreator fio.IOManagerCreator = func(path string, readonly bool) (fio.IOManager, error) {
	if readonly {
		return fio.NewFileIOReadonly(path)
	}
	return fio.NewFileIO(path)
}

var mmapIOManagerCreator fio.IOManagerCreator = func(path string, readonly bool) (fio.IOManager, error) {
	if readonly {
		return fio.NewMmapIO(path)
	}
	return fio.NewFileIO(path)
}

func WithDataFileSize(size int64) Option {
	return func(o *options) {
		o.dataFileSize = size
	}
}

func WithIOManagerCreator(fn fio.IOManagerCreator) Option {
	return func(o *options) {
		o.ioManagerCreator = fn
	}
}

// WithMmapReads serves the files that are already sealed when the
// database opens from read-only memory mappings instead of pread calls.
// Files sealed later in the session (by rotation or compaction) keep
// their pread handle.
func WithMmapReads() Option {
	return func(o *options) {
		o.ioManagerCreator = mmapIOManagerCreator
	}
}

func WithCodec(codec codec.Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

func WithKeydirCreator(fn func() keydir.Keydir) Option {
	return func(o *options) {
		o.keydirCreator = fn
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}
