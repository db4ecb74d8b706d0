// Package writer implements the two-pass conversion from a rewindable
// digital sequence source to the four on-disk dsqdata files.
package writer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"os"

	"dsqdata/abc"
	"dsqdata/dsqerr"
	"dsqdata/layout"
	"dsqdata/packet"
)

// DigitalRecord is one sequence as handed to Write by the external
// sequence-file parser: digital residue codes plus the metadata fields
// that accompany them.
type DigitalRecord struct {
	Name, Acc, Desc string
	Taxid           int32
	Residues        []byte
}

// RecordSource is the minimal contract this package needs from the
// out-of-scope sequence-file parser: a forward iterator that can be
// rewound for the second pass.
type RecordSource interface {
	// Next returns the next record, or io.EOF when exhausted.
	Next() (*DigitalRecord, error)
	// Rewind resets the source to its first record.
	Rewind() error
}

const stubVersion = 1

// Write converts every record in records into basename's four dsqdata
// files, under alphabet's packing rules (5-bit throughout for protein,
// mixed 2-bit/5-bit for nucleotide). The stub file is written last, so
// a reader never sees a tag committed before packing has completed.
func Write(records RecordSource, basename string, alphabet abc.Alphabet) error {
	counts, err := collectCounts(records)
	if err != nil {
		return err
	}
	if err := records.Rewind(); err != nil {
		return dsqerr.Wrap(dsqerr.System, err, "rewinding sequence source for second pass")
	}

	tag := rand.Uint32()
	pack5 := alphabet.Kind() == abc.Protein

	if err := writeBinaryFiles(records, basename, alphabet, pack5, tag, counts); err != nil {
		return err
	}
	return writeStub(basename, tag)
}

type passCounts struct {
	nseq       uint64
	nres       uint64
	maxNameLen uint32
	maxAccLen  uint32
	maxDescLen uint32
	maxSeqLen  uint64
}

// collectCounts is pass 1: gather the counts and maxima the index
// header needs, without writing anything yet.
func collectCounts(records RecordSource) (passCounts, error) {
	var c passCounts
	for {
		rec, err := records.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return passCounts{}, dsqerr.Wrap(dsqerr.Format, err, "reading sequence source")
		}
		c.nseq++
		c.nres += uint64(len(rec.Residues))
		c.maxNameLen = max32(c.maxNameLen, uint32(len(rec.Name)))
		c.maxAccLen = max32(c.maxAccLen, uint32(len(rec.Acc)))
		c.maxDescLen = max32(c.maxDescLen, uint32(len(rec.Desc)))
		if uint64(len(rec.Residues)) > c.maxSeqLen {
			c.maxSeqLen = uint64(len(rec.Residues))
		}
	}
	return c, nil
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// writeBinaryFiles is pass 2: pack and write the index, metadata, and
// sequence files record by record, in lockstep.
func writeBinaryFiles(records RecordSource, basename string, alphabet abc.Alphabet, pack5 bool, tag uint32, counts passCounts) error {
	idxFile, err := os.Create(basename + ".dsqi")
	if err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "creating index file")
	}
	defer idxFile.Close()
	metaFile, err := os.Create(basename + ".dsqm")
	if err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "creating metadata file")
	}
	defer metaFile.Close()
	psqFile, err := os.Create(basename + ".dsqs")
	if err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "creating sequence file")
	}
	defer psqFile.Close()

	idx := bufio.NewWriter(idxFile)
	meta := bufio.NewWriter(metaFile)
	psq := bufio.NewWriter(psqFile)

	header := &layout.IndexHeader{
		Magic:      layout.Magic,
		Tag:        tag,
		Alphabet:   alphabet.Kind(),
		Flags:      0,
		MaxNameLen: counts.maxNameLen,
		MaxAccLen:  counts.maxAccLen,
		MaxDescLen: counts.maxDescLen,
		MaxSeqLen:  counts.maxSeqLen,
		SeqCount:   counts.nseq,
		ResCount:   counts.nres,
	}
	if err := header.WriteTo(idx); err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing index header")
	}

	fileHeader := &layout.FileHeader{Magic: layout.Magic, Tag: tag}
	if err := fileHeader.WriteTo(meta); err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing metadata header")
	}
	if err := fileHeader.WriteTo(psq); err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing sequence header")
	}

	var psqEnd, metaEnd int64
	taxidBuf := make([]byte, 4)
	packetBuf := make([]byte, 4)

	for {
		rec, err := records.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return dsqerr.Wrap(dsqerr.Format, err, "reading sequence source on second pass")
		}

		var packets []uint32
		if pack5 {
			packets = packet.Pack5(rec.Residues, len(rec.Residues))
		} else {
			packets = packet.Pack2(rec.Residues, len(rec.Residues))
		}
		for _, v := range packets {
			binary.LittleEndian.PutUint32(packetBuf, v)
			if _, err := psq.Write(packetBuf); err != nil {
				return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing sequence file")
			}
		}
		psqEnd += int64(len(packets))

		if _, err := meta.WriteString(rec.Name); err != nil {
			return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing metadata file")
		}
		if err := meta.WriteByte(0); err != nil {
			return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing metadata file")
		}
		if _, err := meta.WriteString(rec.Acc); err != nil {
			return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing metadata file")
		}
		if err := meta.WriteByte(0); err != nil {
			return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing metadata file")
		}
		if _, err := meta.WriteString(rec.Desc); err != nil {
			return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing metadata file")
		}
		if err := meta.WriteByte(0); err != nil {
			return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing metadata file")
		}
		binary.LittleEndian.PutUint32(taxidBuf, uint32(rec.Taxid))
		if _, err := meta.Write(taxidBuf); err != nil {
			return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing metadata file")
		}
		metaEnd += int64(len(rec.Name) + 1 + len(rec.Acc) + 1 + len(rec.Desc) + 1 + 4)

		record := &layout.Record{PsqEnd: psqEnd, MetaEnd: metaEnd}
		if err := record.WriteTo(idx); err != nil {
			return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing index record")
		}
	}

	if err := idx.Flush(); err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "flushing index file")
	}
	if err := meta.Flush(); err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "flushing metadata file")
	}
	if err := psq.Flush(); err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "flushing sequence file")
	}
	return nil
}

// writeStub commits the database by writing the human-readable stub
// file last; its presence (and the tag embedded in its first line) is
// what a reader checks first.
func writeStub(basename string, tag uint32) error {
	f, err := os.Create(basename)
	if err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "creating stub file")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(w, layout.FormatStubLine(stubVersion, tag)); err != nil {
		return dsqerr.Wrap(dsqerr.WriteFailed, err, "writing stub file")
	}
	return w.Flush()
}
