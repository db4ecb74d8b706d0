package writer_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dsqdata/abc"
	"dsqdata/chunk"
	"dsqdata/reader"
	"dsqdata/writer"
)

// sliceSource is a RecordSource over a fixed, inspectable slice, used so
// tests can compare what Write consumed against what Read produces.
type sliceSource struct {
	records []*writer.DigitalRecord
	pos     int
}

func (s *sliceSource) Next() (*writer.DigitalRecord, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceSource) Rewind() error {
	s.pos = 0
	return nil
}

func proteinAlphabet(t *testing.T) abc.Alphabet {
	t.Helper()
	a, err := abc.New(abc.Protein)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func dnaAlphabet(t *testing.T) abc.Alphabet {
	t.Helper()
	a, err := abc.New(abc.DNA)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// TestRoundTripTinyProtein covers S1: one four-residue protein sequence.
func TestRoundTripTinyProtein(t *testing.T) {
	dir := t.TempDir()
	basename := filepath.Join(dir, "db")

	records := []*writer.DigitalRecord{
		{Name: "seq1", Acc: "ACC1", Desc: "first sequence", Taxid: 9606, Residues: []byte{0, 1, 2, 3}},
	}
	src := &sliceSource{records: records}
	a := proteinAlphabet(t)
	if err := writer.Write(src, basename, a); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := reader.Open(basename, 1, a, reader.DefaultConfig)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	c, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if c.N != 1 {
		t.Fatalf("N = %d, want 1", c.N)
	}
	residues, name, acc, desc, taxid := c.Seq(0)
	if string(name) != "seq1" || string(acc) != "ACC1" || string(desc) != "first sequence" || taxid != 9606 {
		t.Fatalf("metadata mismatch: %q %q %q %d", name, acc, desc, taxid)
	}
	if len(residues) != 4 {
		t.Fatalf("L[0] = %d, want 4", len(residues))
	}
	for i, code := range records[0].Residues {
		if residues[i] != code {
			t.Fatalf("residue %d = %d, want %d", i, residues[i], code)
		}
	}
	r.Recycle(c)

	if _, err := r.Read(); err != io.EOF {
		t.Fatalf("expected io.EOF after the only chunk, got %v", err)
	}
}

// TestRoundTripManySequencesForcesMultipleChunks exercises the loader's
// chunk-boundary logic by forcing a MaxSeq far smaller than the
// sequence count. Each sequence packs to one packet, so every chunk is
// bounded by MaxSeq and the whole staged buffer always fits MaxPacket;
// the binary-search path is not reached.
func TestRoundTripManySequencesForcesMultipleChunks(t *testing.T) {
	dir := t.TempDir()
	basename := filepath.Join(dir, "db")

	const n = 500
	records := make([]*writer.DigitalRecord, n)
	for i := range records {
		records[i] = &writer.DigitalRecord{
			Name:     "seq",
			Acc:      "acc",
			Desc:     "desc",
			Taxid:    int32(i),
			Residues: []byte{0, 1, 2, byte(i % 4)},
		}
	}
	src := &sliceSource{records: records}
	a := dnaAlphabet(t)
	if err := writer.Write(src, basename, a); err != nil {
		t.Fatalf("Write: %v", err)
	}

	cfg := reader.Config{Limits: chunk.Limits{MaxSeq: 16, MaxPacket: 16}}
	r, err := reader.Open(basename, 1, a, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	seen := 0
	lastI0 := int64(-1)
	for {
		c, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if c.N > 16 {
			t.Fatalf("chunk.N = %d exceeds MaxSeq 16", c.N)
		}
		if c.I0 <= lastI0 {
			t.Fatalf("chunk i0 %d did not advance past %d", c.I0, lastI0)
		}
		lastI0 = c.I0
		for i := 0; i < c.N; i++ {
			residues, _, _, _, taxid := c.Seq(i)
			want := records[taxid]
			if len(residues) != len(want.Residues) {
				t.Fatalf("seq %d length mismatch: got %d want %d", taxid, len(residues), len(want.Residues))
			}
			for j, code := range want.Residues {
				if residues[j] != code {
					t.Fatalf("seq %d residue %d = %d, want %d", taxid, j, residues[j], code)
				}
			}
		}
		seen += c.N
		r.Recycle(c)
	}
	if seen != n {
		t.Fatalf("saw %d sequences total, want %d", seen, n)
	}
}

// TestTagMismatchIsFormatError covers S6: corrupting the stub's tag
// digits must surface a Format error naming the tag field.
func TestTagMismatchIsFormatError(t *testing.T) {
	dir := t.TempDir()
	basename := filepath.Join(dir, "db")

	src := &sliceSource{records: []*writer.DigitalRecord{
		{Name: "a", Acc: "b", Desc: "c", Taxid: 1, Residues: []byte{0, 1, 2}},
	}}
	a := proteinAlphabet(t)
	if err := writer.Write(src, basename, a); err != nil {
		t.Fatalf("Write: %v", err)
	}

	stub, err := os.ReadFile(basename)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimRight(string(stub), "\n")
	idx := strings.LastIndexByte(line, 'x')
	corrupted := line[:idx+1] + "999999999\n"
	if err := os.WriteFile(basename, []byte(corrupted), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = reader.Open(basename, 1, a, reader.DefaultConfig)
	if err == nil {
		t.Fatal("expected a format error for the tag mismatch")
	}
	if !strings.Contains(err.Error(), "tag") {
		t.Fatalf("error %v does not mention the tag field", err)
	}
}
