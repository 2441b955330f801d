package codec

import (
	"encoding/binary"
	"errors"

	"github.com/bitask/bitask/model"
	"github.com/bitask/bitask/utils"
)

var (
	// ErrTruncatedRecord reports a record cut short by end-of-file.
	ErrTruncatedRecord = errors.New("codec: truncated record")

	// ErrCorruptRecord reports a crc mismatch or impossible header.
	ErrCorruptRecord = errors.New("codec: corrupt record")
)

type CodecImpl struct{}

func NewCodecImpl() *CodecImpl {
	return &CodecImpl{}
}

/*
default codec:
	crc(4) | timestamp(8) | keySize(4) | valueSize(4) | key | value
	all integers little-endian; crc is CRC-32/IEEE over every byte
	after the crc itself; valueSize == 0 encodes a tombstone
*/

// MarshalRecord returns the encoded record and its total size.
func (cl *CodecImpl) MarshalRecord(record *model.Record) ([]byte, int64, error) {
	size := model.HeaderSize + len(record.Key) + len(record.Value)
	data := make([]byte, size)

	binary.LittleEndian.PutUint64(data[4:12], record.Timestamp)
	binary.LittleEndian.PutUint32(data[12:16], uint32(len(record.Key)))
	binary.LittleEndian.PutUint32(data[16:20], uint32(len(record.Value)))
	copy(data[model.HeaderSize:], record.Key)
	copy(data[model.HeaderSize+len(record.Key):], record.Value)

	binary.LittleEndian.PutUint32(data[:4], utils.GenerateCrc(data[4:]))

	return data, int64(size), nil
}

func (cl *CodecImpl) UnmarshalRecordHeader(headerData []byte, header *model.RecordHeader) error {
	if len(headerData) < model.HeaderSize {
		return ErrTruncatedRecord
	}

	header.Crc = binary.LittleEndian.Uint32(headerData[:4])
	header.Timestamp = binary.LittleEndian.Uint64(headerData[4:12])
	header.KeySize = binary.LittleEndian.Uint32(headerData[12:16])
	header.ValueSize = binary.LittleEndian.Uint32(headerData[16:20])

	if header.KeySize == 0 {
		return ErrCorruptRecord
	}
	return nil
}

func (cl *CodecImpl) UnmarshalRecord(headerData, body []byte, header *model.RecordHeader, record *model.Record) error {
	kz, vz := int(header.KeySize), int(header.ValueSize)
	if len(body) < kz+vz {
		return ErrTruncatedRecord
	}

	if !utils.CheckCrc(header.Crc, headerData[4:model.HeaderSize], body[:kz+vz]) {
		return ErrCorruptRecord
	}

	record.Key = body[:kz]
	record.Value = body[kz : kz+vz]
	record.Timestamp = header.Timestamp
	return nil
}
