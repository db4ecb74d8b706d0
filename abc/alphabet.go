// Package abc is a stand-in for the external alphabet collaborator: it
// supplies just enough of an alphabet type system for the rest of this
// module to validate and round-trip digital residues. The real alphabet
// system (degeneracy expansion, case folding, symbol tables) lives
// elsewhere; this package only needs to answer three questions: what
// kind of alphabet is this, is a residue code valid for it, and what is
// its sentinel code.
package abc

import "fmt"

// Kind identifies one of the three supported alphabets.
type Kind uint32

const (
	Unknown Kind = iota
	Protein
	DNA
	RNA
)

func (k Kind) String() string {
	switch k {
	case Protein:
		return "protein"
	case DNA:
		return "dna"
	case RNA:
		return "rna"
	default:
		return "unknown"
	}
}

// sentinelCode marks sequence boundaries in an unpacked arena. It isn't
// a valid residue in any of the three alphabets.
const sentinelCode byte = 127

// Alphabet validates digital residue codes for one kind of sequence
// data and reports its sentinel code.
type Alphabet interface {
	Kind() Kind
	// Validate reports whether code is a legal residue (canonical or
	// degenerate) for this alphabet. Code 31 (5-bit "unused slot") and
	// the sentinel are never legal input residues.
	Validate(code byte) bool
	// IsDegenerate reports whether code must force 5-bit packing when
	// it appears in a nucleotide sequence. Always false for protein.
	IsDegenerate(code byte) bool
	Sentinel() byte
}

type alphabet struct {
	kind      Kind
	maxCode   byte
	degenFrom byte // codes >= degenFrom (and < maxCode) are degenerate; 0 disables
}

func (a alphabet) Kind() Kind { return a.kind }
func (a alphabet) Sentinel() byte { return sentinelCode }

func (a alphabet) Validate(code byte) bool {
	return code < a.maxCode
}

func (a alphabet) IsDegenerate(code byte) bool {
	return a.degenFrom != 0 && code >= a.degenFrom
}

// New constructs the concrete alphabet for kind. Protein residues use
// codes 0..19 (no degeneracy distinction at the packing layer: every
// protein residue is packed 5-bit regardless). Nucleotide residues use
// codes 0..3 for canonical bases and 4..17 for IUPAC degeneracy codes,
// matching spec's "code > 3 is degenerate" rule.
func New(kind Kind) (Alphabet, error) {
	switch kind {
	case Protein:
		return alphabet{kind: Protein, maxCode: 20}, nil
	case DNA:
		return alphabet{kind: DNA, maxCode: 18, degenFrom: 4}, nil
	case RNA:
		return alphabet{kind: RNA, maxCode: 18, degenFrom: 4}, nil
	default:
		return nil, fmt.Errorf("abc: unknown alphabet kind %d", kind)
	}
}
