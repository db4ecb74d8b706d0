// Package chunk implements the reader-side batch container: a
// fixed-capacity set of sequences sharing one packed-and-unpacked
// memory arena, and the routine that unpacks that arena in place.
package chunk

import (
	"encoding/binary"

	"dsqdata/abc"
	"dsqdata/dsqerr"
	"dsqdata/packet"
)

// Limits bounds a chunk's capacity: at most MaxSeq sequences and
// MaxPacket packets may be loaded into it at once. Grounded on the
// reader's chunk_maxseq/chunk_maxpacket configuration knobs.
type Limits struct {
	MaxSeq    int
	MaxPacket int
}

// DefaultLimits matches the original implementation's fixed constants.
var DefaultLimits = Limits{MaxSeq: 4096, MaxPacket: 4096}

// residuesPerPacket is the worst-case residue yield of one packet
// under a given packing mode: 6 for 5-bit (protein), 15 for 2-bit
// (nucleotide). It sizes the shared arena so the decode cursor can
// never catch up with the still-unread packed tail.
func residuesPerPacket(pack5 bool) int {
	if pack5 {
		return 6
	}
	return 15
}

// arenaSize computes U, the shared arena's byte size: enough to hold
// the fully unpacked residues of a maximal chunk (one sentinel per
// sequence boundary, plus a leading one) while the as-yet-unread
// packed bytes still occupy its tail.
func arenaSize(lim Limits, pack5 bool) int {
	return residuesPerPacket(pack5)*lim.MaxPacket + lim.MaxSeq + 1
}

// Chunk is a reusable batch of up to Limits.MaxSeq sequences. It is
// allocated once by the loader and recycled for the lifetime of a
// Reader; only the fields below change between loads.
type Chunk struct {
	lim   Limits
	pack5 bool

	I0 int64 // database index of the first sequence in this chunk
	N  int   // sequence count; 0 marks the EOF chunk
	pn int   // packets currently loaded into smem's tail

	// smem is the shared arena: packed packet bytes occupy its last
	// 4*MaxPacket bytes (loaded directly off disk, little-endian, by
	// the loader); Unpack then overwrites it from offset 0 with
	// decoded residues and sentinels, left to right. The sizing
	// invariant in arenaSize guarantees the write cursor never
	// overtakes the still-unread packet tail.
	smem []byte

	// Per-sequence bookkeeping, set by Unpack. off[i] is the offset of
	// sequence i's leading sentinel byte, so its residues are
	// smem[off[i]+1 : off[i]+1+L[i]], excluding the sentinel bytes on
	// either side.
	off   []int
	L     []int
	name  [][]byte
	acc   [][]byte
	desc  [][]byte
	taxid []int32

	// metadata is the loader's raw per-chunk metadata staging buffer;
	// it grows monotonically and is never shrunk between loads.
	metadata []byte
	mdlen    int
}

// New allocates a chunk sized for lim under the given packing mode.
// pack5 must be true iff the database alphabet is protein.
func New(lim Limits, pack5 bool) *Chunk {
	return &Chunk{
		lim:      lim,
		pack5:    pack5,
		smem:     make([]byte, arenaSize(lim, pack5)),
		off:      make([]int, lim.MaxSeq),
		L:        make([]int, lim.MaxSeq),
		name:     make([][]byte, lim.MaxSeq),
		acc:      make([][]byte, lim.MaxSeq),
		desc:     make([][]byte, lim.MaxSeq),
		taxid:    make([]int32, lim.MaxSeq),
		metadata: make([]byte, 20*lim.MaxSeq),
	}
}

// packetTailOffset is the byte offset in smem where the pn loaded
// packets begin (4 bytes each, little-endian).
func (c *Chunk) packetTailOffset() int {
	return len(c.smem) - 4*c.lim.MaxPacket
}

// PacketCap is the maximum number of packets this chunk can hold.
func (c *Chunk) PacketCap() int { return c.lim.MaxPacket }

// SeqCap is the maximum number of sequences this chunk can hold.
func (c *Chunk) SeqCap() int { return c.lim.MaxSeq }

// PacketBuf returns the first n packets' worth of the fixed packet
// region at the tail of the arena (smem[packetTailOffset():]) for the
// loader to read raw packet bytes into. The packet region's base
// offset is fixed by MaxPacket, not by n, so Unpack (which always
// reads from packetTailOffset()) finds them regardless of how many
// packets a particular load contained.
func (c *Chunk) PacketBuf(n int) []byte {
	off := c.packetTailOffset()
	return c.smem[off : off+4*n]
}

// MetadataBuf returns a buffer of at least n bytes for the loader to
// read raw metadata into, replacing the backing array with a larger
// one (without copying the old contents) if the current one is too
// small. The grown buffer is kept for reuse by later loads into this
// same chunk.
func (c *Chunk) MetadataBuf(n int) []byte {
	if cap(c.metadata) < n {
		grown := make([]byte, n)
		c.metadata = grown
	}
	c.metadata = c.metadata[:n]
	c.mdlen = n
	return c.metadata
}

// SetLoaded records what the loader deposited: the index of the first
// sequence, how many sequences and packets were read, and how much of
// the metadata buffer they occupy. Unpack reads these back.
func (c *Chunk) SetLoaded(i0 int64, n, pn, mdlen int) {
	c.I0 = i0
	c.N = n
	c.pn = pn
	c.mdlen = mdlen
}

// Reset clears a chunk's populated fields so it can be handed back to
// the loader for its next load, without discarding the backing
// allocations.
func (c *Chunk) Reset() {
	c.I0, c.N, c.pn, c.mdlen = 0, 0, 0, 0
}

// Seq returns sequence i's unpacked digital residues (excluding the
// sentinels on either side) and its name, accession, description, and
// taxonomy id. off[i] points at sequence i's leading sentinel byte, so
// the residues themselves begin one byte past it.
func (c *Chunk) Seq(i int) (residues []byte, name, acc, desc []byte, taxid int32) {
	start := c.off[i] + 1
	return c.smem[start : start+c.L[i]], c.name[i], c.acc[i], c.desc[i], c.taxid[i]
}

// Len reports sequence i's residue count.
func (c *Chunk) Len(i int) int { return c.L[i] }

// walker is the bounded, format-error-on-overrun replacement for the
// raw strchr-based metadata pointer walk in the original implementation.
type walker struct {
	buf []byte
	pos int
}

func (w *walker) cstring() ([]byte, error) {
	nul := -1
	for i := w.pos; i < len(w.buf); i++ {
		if w.buf[i] == 0 {
			nul = i
			break
		}
	}
	if nul < 0 {
		return nil, dsqerr.New(dsqerr.Format, "metadata record missing null terminator")
	}
	s := w.buf[w.pos:nul]
	w.pos = nul + 1
	return s, nil
}

func (w *walker) taxid() (int32, error) {
	if w.pos+4 > len(w.buf) {
		return 0, dsqerr.New(dsqerr.Format, "metadata record truncated before taxonomy id")
	}
	v := int32(binary.LittleEndian.Uint32(w.buf[w.pos : w.pos+4]))
	w.pos += 4
	return v, nil
}

// Unpack decodes this chunk's loaded packets and metadata in place.
// It is a no-op on the EOF chunk (N == 0). alphabet is used only for
// its Sentinel code.
func (c *Chunk) Unpack(alphabet abc.Alphabet) error {
	if c.N == 0 {
		return nil
	}

	w := &walker{buf: c.metadata[:c.mdlen]}
	for i := 0; i < c.N; i++ {
		name, err := w.cstring()
		if err != nil {
			return err
		}
		acc, err := w.cstring()
		if err != nil {
			return err
		}
		desc, err := w.cstring()
		if err != nil {
			return err
		}
		taxid, err := w.taxid()
		if err != nil {
			return err
		}
		c.name[i], c.acc[i], c.desc[i], c.taxid[i] = name, acc, desc, taxid
	}

	dsq := c.smem
	r := 0
	i := 0
	sentinelCode := alphabet.Sentinel()
	c.off[0] = r
	dsq[r] = sentinelCode
	r++

	tail := c.packetTailOffset()
	for pos := 0; pos < c.pn; pos++ {
		// Must read from dsq (the arena), not a separately loaded
		// packet slice: the packed bytes live in the tail of the same
		// buffer Unpack is overwriting from the front.
		v := binary.LittleEndian.Uint32(dsq[tail+4*pos : tail+4*pos+4])

		mode, err := packet.Decode(v, func(code byte) {
			dsq[r] = code
			r++
		})
		if err != nil {
			return err
		}
		if mode == packet.EOD2Bit || mode == packet.EOD5Bit {
			c.L[i] = r - c.off[i] - 1
			i++
			if i < c.N {
				c.off[i] = r
			}
			dsq[r] = sentinelCode
			r++
		}
	}

	if i != c.N {
		return dsqerr.New(dsqerr.Format, "unpacked %d sequences, expected %d", i, c.N)
	}
	return nil
}
