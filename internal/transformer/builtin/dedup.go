package builtin

import (
	"github.com/zeebo/xxh3"

	"ingest/pkg/records"
)

// DefaultDedupCapacity caps how many fingerprints a DeDup remembers.
const DefaultDedupCapacity = 10_000_000

// DeDup drops exact duplicate records by an xxh3 fingerprint of their raw
// fields. Only the fingerprints are kept, so memory is 8 bytes per distinct
// record up to Capacity; beyond that new records are no longer tracked and
// always pass.
//
// DeDup is not safe for concurrent use; the reader side of a run owns it.
type DeDup struct {
	Capacity int

	seen map[uint64]struct{}
	buf  []byte
}

// NewDeDup returns a DeDup with the default capacity.
func NewDeDup() *DeDup { return &DeDup{Capacity: DefaultDedupCapacity} }

// Seen reports whether an identical record was offered before, and remembers
// rec otherwise.
func (d *DeDup) Seen(rec records.Record) bool {
	if d.seen == nil {
		d.seen = make(map[uint64]struct{})
	}
	h := d.Fingerprint(rec)
	if _, dup := d.seen[h]; dup {
		return true
	}
	if d.Capacity <= 0 || len(d.seen) < d.Capacity {
		d.seen[h] = struct{}{}
	}
	return false
}

// Fingerprint hashes the record's keys and raw values in key order. A nil
// value hashes differently from an empty string.
func (d *DeDup) Fingerprint(rec records.Record) uint64 {
	b := d.buf[:0]
	for _, k := range rec.Keys {
		b = append(b, k...)
		b = append(b, 0x1f)
		v, ok := rec.Fields[k]
		switch {
		case !ok:
			b = append(b, 0x01)
		case v == nil:
			b = append(b, 0x00)
		default:
			s, _ := Text(v)
			b = append(b, 0x02)
			b = append(b, s...)
		}
		b = append(b, 0x1e)
	}
	d.buf = b
	return xxh3.Hash(b)
}
