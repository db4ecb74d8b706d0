// Package layout defines the on-disk binary structures shared by the
// four dsqdata files: the stub's tag line grammar, the index file's
// fixed header and per-sequence records, and the metadata/sequence
// files' two-field headers. All multi-byte fields are little-endian,
// matching the magic constants below.
package layout

import (
	"encoding/binary"
	"fmt"
	"io"

	"dsqdata/abc"
	"dsqdata/dsqerr"
)

// Magic identifies the format version and byte order. MagicSwapped is
// the byte-reversed form of Magic; seeing it at Open means the database
// was written on a machine of the opposite endianness. This module
// detects that case and rejects it (see Open Question decisions in
// SPEC_FULL.md) rather than transparently byte-swapping.
const (
	Magic        uint32 = 0x64737131 // "dsq1"
	MagicSwapped uint32 = 0x31717364
)

// IndexHeaderSize is the on-disk size in bytes of the index file's
// fixed header: 7 uint32 fields followed by 3 uint64 fields.
const IndexHeaderSize = 7*4 + 3*8

// IndexHeader is the index file's fixed header, one per database.
type IndexHeader struct {
	Magic       uint32
	Tag         uint32
	Alphabet    abc.Kind
	Flags       uint32
	MaxNameLen  uint32
	MaxAccLen   uint32
	MaxDescLen  uint32
	MaxSeqLen   uint64
	SeqCount    uint64
	ResCount    uint64
}

// WriteTo encodes h to w in the on-disk order: magic, tag, alphabet,
// flags, max name/acc/desc lengths, then max seq len, seq count, res
// count.
func (h *IndexHeader) WriteTo(w io.Writer) error {
	buf := make([]byte, IndexHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.Alphabet))
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	binary.LittleEndian.PutUint32(buf[16:20], h.MaxNameLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.MaxAccLen)
	binary.LittleEndian.PutUint32(buf[24:28], h.MaxDescLen)
	binary.LittleEndian.PutUint64(buf[28:36], h.MaxSeqLen)
	binary.LittleEndian.PutUint64(buf[36:44], h.SeqCount)
	binary.LittleEndian.PutUint64(buf[44:52], h.ResCount)
	_, err := w.Write(buf)
	return err
}

// ReadIndexHeader parses the fixed index header from r.
func ReadIndexHeader(r io.Reader) (*IndexHeader, error) {
	buf := make([]byte, IndexHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, dsqerr.Wrap(dsqerr.Format, err, "index file header truncated or missing")
	}
	h := &IndexHeader{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Tag:        binary.LittleEndian.Uint32(buf[4:8]),
		Alphabet:   abc.Kind(binary.LittleEndian.Uint32(buf[8:12])),
		Flags:      binary.LittleEndian.Uint32(buf[12:16]),
		MaxNameLen: binary.LittleEndian.Uint32(buf[16:20]),
		MaxAccLen:  binary.LittleEndian.Uint32(buf[20:24]),
		MaxDescLen: binary.LittleEndian.Uint32(buf[24:28]),
		MaxSeqLen:  binary.LittleEndian.Uint64(buf[28:36]),
		SeqCount:   binary.LittleEndian.Uint64(buf[36:44]),
		ResCount:   binary.LittleEndian.Uint64(buf[44:52]),
	}
	return h, nil
}

// RecordSize is the on-disk size in bytes of one index record.
const RecordSize = 16

// Record is one sequence's packet- and metadata-range end offset, both
// measured from the start of the respective file's element stream
// (32-bit packets for PsqEnd, bytes for MetaEnd). Each is the running
// total through this sequence, one past its last element: sequence i
// spans [previous record's end, this end), and the first sequence
// starts at 0. The stored value is not an inclusive last-element index.
type Record struct {
	PsqEnd  int64
	MetaEnd int64
}

// WriteTo encodes r to w.
func (r *Record) WriteTo(w io.Writer) error {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.PsqEnd))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.MetaEnd))
	_, err := w.Write(buf)
	return err
}

// DecodeRecord parses one record out of buf (must be at least
// RecordSize bytes).
func DecodeRecord(buf []byte) Record {
	return Record{
		PsqEnd:  int64(binary.LittleEndian.Uint64(buf[0:8])),
		MetaEnd: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}
}

// FileHeaderSize is the on-disk size of the metadata and sequence
// files' shared two-field header (magic, tag).
const FileHeaderSize = 8

// FileHeader is the metadata/sequence file header: just enough to
// cross-check magic and tag against the stub and index.
type FileHeader struct {
	Magic uint32
	Tag   uint32
}

func (h *FileHeader) WriteTo(w io.Writer) error {
	buf := make([]byte, FileHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Tag)
	_, err := w.Write(buf)
	return err
}

func ReadFileHeader(r io.Reader, name string) (*FileHeader, error) {
	buf := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, dsqerr.Wrap(dsqerr.Format, err, "%s file header truncated or missing", name)
	}
	return &FileHeader{
		Magic: binary.LittleEndian.Uint32(buf[0:4]),
		Tag:   binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// CheckMagic validates magic against the native and swapped constants.
// It returns (swapped, err): swapped is true if the byte-reversed form
// was seen (a database written on the opposite-endian machine).
func CheckMagic(magic uint32) (swapped bool, err error) {
	switch magic {
	case Magic:
		return false, nil
	case MagicSwapped:
		return true, dsqerr.NewField(dsqerr.Format, "magic", "database was written on a byte-swapped machine; this reader does not convert byte order")
	default:
		return false, dsqerr.NewField(dsqerr.Format, "magic", "bad magic 0x%08x", magic)
	}
}

// StubLine is the grammar of the stub file's first line:
// "Easel dsqdata v<int> x<uint32>".
type StubLine struct {
	Version int
	Tag     uint32
}

// ParseStubLine parses the stub file's first line. The surrounding
// commentary lines are not otherwise interpreted by this reader.
func ParseStubLine(line string) (*StubLine, error) {
	var word1, word2 string
	var version int
	var tag uint32
	n, err := fmt.Sscanf(line, "%s %s v%d x%d", &word1, &word2, &version, &tag)
	if err != nil || n != 4 {
		return nil, dsqerr.New(dsqerr.Format, "stub file tag line has bad format: %q", line)
	}
	if word1 != "Easel" || word2 != "dsqdata" {
		return nil, dsqerr.New(dsqerr.Format, "stub file tag line has bad format: %q", line)
	}
	return &StubLine{Version: version, Tag: tag}, nil
}

// FormatStubLine renders the stub file's first line for a given tag.
func FormatStubLine(version int, tag uint32) string {
	return fmt.Sprintf("Easel dsqdata v%d x%d", version, tag)
}
