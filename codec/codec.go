package codec

import "github.com/bitask/bitask/model"

// Codec turns records into their on-disk form and back.
// The default codec writes the fixed little-endian header described in
// model.RecordHeader; implement your own to change the wire format.
type Codec interface {
	// MarshalRecord returns the encoded record and its total size
	MarshalRecord(*model.Record) ([]byte, int64, error)

	// UnmarshalRecordHeader parses a fixed-size header from headerData
	UnmarshalRecordHeader(headerData []byte, header *model.RecordHeader) error

	// UnmarshalRecord verifies the crc against the raw header bytes and
	// body, then fills record with the key and value
	UnmarshalRecord(headerData, body []byte, header *model.RecordHeader, record *model.Record) error
}
