package chunk

import (
	"encoding/binary"
	"testing"

	"dsqdata/abc"
	"dsqdata/packet"
)

func appendMetaRecord(buf []byte, name, acc, desc string, taxid int32) []byte {
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, acc...)
	buf = append(buf, 0)
	buf = append(buf, desc...)
	buf = append(buf, 0)
	tid := make([]byte, 4)
	binary.LittleEndian.PutUint32(tid, uint32(taxid))
	return append(buf, tid...)
}

func loadPackets(c *Chunk, packets []uint32) {
	buf := c.PacketBuf(len(packets))
	for i, v := range packets {
		binary.LittleEndian.PutUint32(buf[4*i:4*i+4], v)
	}
}

func TestUnpackTwoSequences(t *testing.T) {
	a, err := abc.New(abc.Protein)
	if err != nil {
		t.Fatal(err)
	}

	seq1 := []byte{0, 1, 2, 3}    // "ACDE"
	seq2 := []byte{4, 5, 6, 7, 8} // five more residues
	packets := append(packet.Pack5(seq1, len(seq1)), packet.Pack5(seq2, len(seq2))...)

	c := New(DefaultLimits, true)
	loadPackets(c, packets)

	var meta []byte
	meta = appendMetaRecord(meta, "seq1", "ACC1", "first sequence", 9606)
	meta = appendMetaRecord(meta, "seq2", "ACC2", "second sequence", 10090)
	mdbuf := c.MetadataBuf(len(meta))
	copy(mdbuf, meta)

	c.SetLoaded(0, 2, len(packets), len(meta))

	if err := c.Unpack(a); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	if c.Len(0) != len(seq1) {
		t.Fatalf("L[0] = %d, want %d", c.Len(0), len(seq1))
	}
	if c.Len(1) != len(seq2) {
		t.Fatalf("L[1] = %d, want %d", c.Len(1), len(seq2))
	}

	r0, name0, acc0, desc0, taxid0 := c.Seq(0)
	if string(name0) != "seq1" || string(acc0) != "ACC1" || string(desc0) != "first sequence" || taxid0 != 9606 {
		t.Fatalf("sequence 0 metadata mismatch: %q %q %q %d", name0, acc0, desc0, taxid0)
	}
	for i, code := range seq1 {
		if r0[i] != code {
			t.Fatalf("sequence 0 residue %d = %d, want %d", i, r0[i], code)
		}
	}

	r1, name1, acc1, desc1, taxid1 := c.Seq(1)
	if string(name1) != "seq2" || string(acc1) != "ACC2" || string(desc1) != "second sequence" || taxid1 != 10090 {
		t.Fatalf("sequence 1 metadata mismatch: %q %q %q %d", name1, acc1, desc1, taxid1)
	}
	for i, code := range seq2 {
		if r1[i] != code {
			t.Fatalf("sequence 1 residue %d = %d, want %d", i, r1[i], code)
		}
	}
}

func TestUnpackEOFChunkIsNoop(t *testing.T) {
	a, err := abc.New(abc.DNA)
	if err != nil {
		t.Fatal(err)
	}
	c := New(DefaultLimits, false)
	c.SetLoaded(42, 0, 0, 0)
	if err := c.Unpack(a); err != nil {
		t.Fatalf("Unpack on EOF chunk returned error: %v", err)
	}
}

func TestUnpackTruncatedMetadataIsFormatError(t *testing.T) {
	a, err := abc.New(abc.Protein)
	if err != nil {
		t.Fatal(err)
	}
	seq := []byte{0, 1, 2}
	packets := packet.Pack5(seq, len(seq))
	c := New(DefaultLimits, true)
	loadPackets(c, packets)

	// A single unterminated string: the walker should fail, not panic.
	mdbuf := c.MetadataBuf(3)
	copy(mdbuf, []byte("abc"))
	c.SetLoaded(0, 1, len(packets), 3)

	if err := c.Unpack(a); err == nil {
		t.Fatal("expected a format error for missing null terminator, got nil")
	}
}
