// Package rec is the reference shelf format for polka: one directory per
// record, holding a TLV manifest with a checksummed, snappy-compressed
// body, plus numeric symlinks beside the directories acting as shortcuts.
package rec

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/cespare/xxhash"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/learn-decentralized-systems/toytlv"

	"github.com/drpcorg/polka"
)

const ManifestName = "manifest.tlv"

// IDFormat renders a UTC timestamp fixed-width, so identifier order is
// creation order. That keeps identifiers and numbers sorting the same
// way, which the map's binary search depends on.
const IDFormat = "20060102-150405.000000000"

var idPattern = regexp.MustCompile(`^\d{8}-\d{6}\.\d{9}$`)

var (
	ErrBadManifest = errors.New("bad record manifest")
	ErrChecksum    = errors.New("record body checksum mismatch")
)

// IsRecordID reports whether a directory name looks like a record
// identifier. Plain-integer shortcut names do not match.
func IsRecordID(name string) bool {
	return idPattern.MatchString(name)
}

// Rec is one shelved record. Recs are immutable; the archive hands them
// out and the map caches them, nobody edits them.
type Rec struct {
	id   string
	num  int64
	fp   uuid.UUID
	at   time.Time
	note string
	body []byte
}

func New(id string, num int64, at time.Time, note string, body []byte) *Rec {
	return &Rec{
		id:   id,
		num:  num,
		fp:   uuid.Must(uuid.NewV7()),
		at:   at,
		note: note,
		body: body,
	}
}

func (r *Rec) ID() string             { return r.id }
func (r *Rec) Number() int64          { return r.num }
func (r *Rec) Fingerprint() uuid.UUID { return r.fp }
func (r *Rec) Time() time.Time        { return r.at }
func (r *Rec) Note() string           { return r.note }
func (r *Rec) Body() []byte           { return r.body }

// TLV seals the record into its manifest bytes. The body travels
// compressed; the checksum is over the raw body so corruption is caught
// whether it happens before or after compression.
func (r *Rec) TLV() []byte {
	var num, at, sum [8]byte
	binary.BigEndian.PutUint64(num[:], uint64(r.num))
	binary.BigEndian.PutUint64(at[:], uint64(r.at.UnixNano()))
	binary.BigEndian.PutUint64(sum[:], xxhash.Sum64(r.body))
	fields := toytlv.Concat(
		toytlv.Record('I', []byte(r.id)),
		toytlv.Record('N', num[:]),
		toytlv.Record('F', r.fp[:]),
		toytlv.Record('T', at[:]),
		toytlv.Record('H', sum[:]),
		toytlv.Record('B', snappy.Encode(nil, r.body)),
	)
	if r.note != "" {
		fields = append(fields, toytlv.Record('S', []byte(r.note))...)
	}
	return toytlv.Record('R', fields)
}

// Parse reads a manifest back into a record, verifying the checksum.
func Parse(data []byte) (*Rec, error) {
	fields, rest, err := toytlv.TakeWary('R', data)
	if err != nil {
		return nil, ErrBadManifest
	}
	if len(rest) != 0 {
		return nil, ErrBadManifest
	}
	r := &Rec{}
	var sum []byte
	var haveID, haveNum, haveSum, haveBody bool
	for len(fields) > 0 {
		var lit byte
		var body []byte
		lit, body, fields, err = toytlv.TakeAnyWary(fields)
		if err != nil {
			return nil, ErrBadManifest
		}
		switch lit {
		case 'I':
			r.id = string(body)
			haveID = true
		case 'N':
			if len(body) != 8 {
				return nil, ErrBadManifest
			}
			r.num = int64(binary.BigEndian.Uint64(body))
			haveNum = true
		case 'F':
			if len(body) != 16 {
				return nil, ErrBadManifest
			}
			copy(r.fp[:], body)
		case 'T':
			if len(body) != 8 {
				return nil, ErrBadManifest
			}
			r.at = time.Unix(0, int64(binary.BigEndian.Uint64(body))).UTC()
		case 'S':
			r.note = string(body)
		case 'H':
			if len(body) != 8 {
				return nil, ErrBadManifest
			}
			sum = body
			haveSum = true
		case 'B':
			r.body, err = snappy.Decode(nil, body)
			if err != nil {
				return nil, ErrBadManifest
			}
			haveBody = true
		default:
			// unknown fields pass through, older readers stay usable
		}
	}
	if !haveID || !haveNum || !haveSum || !haveBody {
		return nil, ErrBadManifest
	}
	if xxhash.Sum64(r.body) != binary.BigEndian.Uint64(sum) {
		return nil, ErrChecksum
	}
	return r, nil
}

// Source teaches a polka.Map to read record directories written by an
// Archive. The zero value is ready to use.
type Source struct{}

func (Source) Load(dir string) (*Rec, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (Source) ID(r *Rec) string { return r.id }

func (Source) Number(r *Rec) int64 { return r.num }

func (Source) Accept(name string) bool { return IsRecordID(name) }

// Map opens a lazy map over the directory an Archive writes.
func Map(dir string, opts polka.Options) (*polka.Map[*Rec], error) {
	return polka.Open(dir, Source{}, opts)
}
