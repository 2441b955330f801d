package model

// HeaderSize is the fixed record header width:
// crc(4) + timestamp(8) + keySize(4) + valueSize(4), little-endian.
const HeaderSize = 20

// RecordHeader is the fixed-size prefix of every on-disk record.
// The crc covers the header bytes after the crc itself, the key and
// the value.
type RecordHeader struct {
	Crc       uint32
	Timestamp uint64
	KeySize   uint32
	ValueSize uint32
}

// Tombstone reports whether the header marks a deletion.
// ValueSize == 0 is reserved for tombstones, which is why the engine
// rejects empty values on put.
func (h *RecordHeader) Tombstone() bool {
	return h.ValueSize == 0
}

type Record struct {
	Key       []byte
	Value     []byte
	Timestamp uint64
}

// Tombstone reports whether the record marks a deletion.
func (r *Record) Tombstone() bool {
	return len(r.Value) == 0
}

// RecordPos locates the most recent live value of a key.
type RecordPos struct {
	Fid       uint64 // file id
	Offset    int64  // absolute offset of the value payload
	Size      uint32 // value size
	Timestamp uint64
}

// Before reports whether p was written before other, ordering by
// (timestamp, file id, offset). Millisecond timestamps collide in
// tight loops, so timestamp alone never decides.
func (p *RecordPos) Before(other *RecordPos) bool {
	if p.Timestamp != other.Timestamp {
		return p.Timestamp < other.Timestamp
	}
	if p.Fid != other.Fid {
		return p.Fid < other.Fid
	}
	return p.Offset < other.Offset
}
