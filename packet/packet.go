// Package packet implements the 32-bit packet encoding described in
// the database's sequence file: a bit-packed stream of either 15
// 2-bit residues or 6 5-bit residues per packet, with an EOD sentinel
// bit marking the last packet of each sequence.
package packet

import "dsqdata/dsqerr"

const (
	// eodBit marks the last packet of a sequence.
	eodBit = uint32(1) << 31
	// fiveBit marks a packet as 5-bit packed (6 residues); clear means
	// 2-bit packed (15 residues).
	fiveBit = uint32(1) << 30
	// unusedCode fills unused slots in a partial 5-bit EOD packet. It
	// is never a legal input residue code.
	unusedCode = uint32(31)
)

// Pack5 encodes residues[0:n] as a stream of 5-bit packets: full
// 6-residue packets with no EOD bit, followed by exactly one trailing
// packet carrying the 0..5 leftover residues (padded with unusedCode)
// with the EOD bit set. A full packet is never also the EOD packet —
// landing exactly on a multiple of 6 (including n == 0) still gets a
// dedicated all-unused EOD packet — so the total packet count is
// always ceil((n+1)/6).
//
// Unlike the reader-side unpack (package chunk), the writer packs in a
// single batch pass rather than a hot per-chunk loop, so this port
// allocates the output slice fresh instead of reusing residues'
// storage in place — simpler and just as correct, since nothing here
// is on the chunked-read fast path the in-place arena trick exists for.
func Pack5(residues []byte, n int) []uint32 {
	out := make([]uint32, 0, n/6+1)
	r := 0
	for n-r >= 6 {
		v := fiveBit
		shift := 25
		for i := 0; i < 6; i++ {
			v |= uint32(residues[r]) << uint(shift)
			r++
			shift -= 5
		}
		out = append(out, v)
	}
	v := fiveBit | eodBit
	shift := 25
	for r < n {
		v |= uint32(residues[r]) << uint(shift)
		r++
		shift -= 5
	}
	for ; shift >= 0; shift -= 5 {
		v |= unusedCode << uint(shift)
	}
	out = append(out, v)
	return out
}

// allUnusedEOD builds a standalone 5-bit EOD packet with all six slots
// set to unusedCode: the dedicated terminator for a zero-length
// sequence of any alphabet.
func allUnusedEOD() uint32 {
	v := fiveBit | eodBit
	for shift := 25; shift >= 0; shift -= 5 {
		v |= unusedCode << uint(shift)
	}
	return v
}

// Pack2 encodes residues[0:n] as a mixed stream of 2-bit and 5-bit
// packets. A run of 15 canonical (code <= 3) residues packs 2-bit; any
// window that would otherwise contain a degenerate residue (code > 3)
// within its next 15 positions instead emits a 5-bit packet covering
// the next up to 6 residues, so that the degenerate code always has 5
// bits available to represent it.
//
// Unlike Pack5, a full packet (2-bit or 5-bit) that lands exactly on
// the last residue carries the EOD bit directly rather than deferring
// to a dedicated trailing packet: a full 2-bit EOD packet is a normal,
// expected case here (the packet format's "10" dispatch code exists
// for exactly this), so there is no reason to spend an extra packet
// avoiding it. n == 0 is special-cased to the same dedicated all-unused
// EOD packet Pack5 uses for an empty sequence, since every sequence
// regardless of alphabet must end in exactly one EOD packet.
func Pack2(residues []byte, n int) []uint32 {
	if n == 0 {
		return []uint32{allUnusedEOD()}
	}
	out := make([]uint32, 0, n/15+2)
	r := 0
	d := -1 // next position >= r with a degenerate residue, or n if none; -1 forces the first scan
	for r < n {
		if d < r {
			d = r
			for d < n && residues[d] <= 3 {
				d++
			}
		}
		var v uint32
		if n-r >= 15 && d >= r+15 {
			shift := 28
			for i := 0; i < 15; i++ {
				v |= uint32(residues[r]) << uint(shift)
				r++
				shift -= 2
			}
		} else {
			v = fiveBit
			shift := 25
			for ; shift >= 0 && r < n; shift -= 5 {
				v |= uint32(residues[r]) << uint(shift)
				r++
			}
			for ; shift >= 0; shift -= 5 {
				v |= unusedCode << uint(shift)
			}
		}
		if r >= n {
			v |= eodBit
		}
		out = append(out, v)
	}
	return out
}

// Mode is a packet's top two control bits. Returned by Decode for use
// by the unpack routine in package chunk, which owns the
// shared arena and per-sequence bookkeeping that a standalone packet
// decoder has no business touching.
type Mode int

const (
	Full2Bit Mode = iota
	Full5Bit
	EOD2Bit
	EOD5Bit
)

// Decode splits a packet into its mode and yields its residues via
// emit. For EOD5Bit, decoding stops at the first unusedCode slot or
// after 6 slots, whichever comes first.
func Decode(v uint32, emit func(code byte)) (mode Mode, err error) {
	switch v >> 30 {
	case 0:
		for shift := 28; shift >= 0; shift -= 2 {
			emit(byte((v >> uint(shift)) & 3))
		}
		return Full2Bit, nil
	case 1:
		for shift := 25; shift >= 0; shift -= 5 {
			emit(byte((v >> uint(shift)) & 31))
		}
		return Full5Bit, nil
	case 2:
		for shift := 28; shift >= 0; shift -= 2 {
			emit(byte((v >> uint(shift)) & 3))
		}
		return EOD2Bit, nil
	case 3:
		for shift := 25; shift >= 0; shift -= 5 {
			code := byte((v >> uint(shift)) & 31)
			if code == byte(unusedCode) {
				break
			}
			emit(code)
		}
		return EOD5Bit, nil
	}
	return 0, dsqerr.New(dsqerr.Format, "unreachable packet mode")
}

// IsEOD reports whether v is the last packet of its sequence.
func IsEOD(v uint32) bool { return v&eodBit != 0 }
