// Package fixtures generates synthetic digital records for tests, using
// go-faker for realistic-looking metadata strings the way the teacher's
// own seed routine used faker.Word() to build synthetic keys and values.
package fixtures

import (
	"io"
	"math/rand"

	"github.com/go-faker/faker/v4"

	"dsqdata/abc"
	"dsqdata/writer"
)

// memSource is a RecordSource backed by an in-memory slice, rewindable
// by resetting its cursor.
type memSource struct {
	records []*writer.DigitalRecord
	pos     int
}

// New generates n synthetic records under alphabet and wraps them in a
// rewindable RecordSource. maxLen bounds each record's residue count
// (actual length is chosen uniformly in [0, maxLen]).
func New(n int, alphabet abc.Alphabet, maxLen int) writer.RecordSource {
	records := make([]*writer.DigitalRecord, n)
	for i := range records {
		records[i] = randomRecord(alphabet, maxLen)
	}
	return &memSource{records: records}
}

func randomRecord(alphabet abc.Alphabet, maxLen int) *writer.DigitalRecord {
	n := rand.Intn(maxLen + 1)
	residues := make([]byte, n)
	maxCode := codeCeiling(alphabet)
	for i := range residues {
		residues[i] = byte(rand.Intn(maxCode))
	}
	return &writer.DigitalRecord{
		Name:     faker.Word() + faker.Word(),
		Acc:      faker.Word(),
		Desc:     faker.Sentence(),
		Taxid:    int32(rand.Intn(1 << 20)),
		Residues: residues,
	}
}

// codeCeiling returns the exclusive upper bound on a valid residue code
// for alphabet, found by probing Validate from the top of the 5-bit
// range down — avoiding any dependency on abc's unexported alphabet
// internals.
func codeCeiling(alphabet abc.Alphabet) int {
	for code := 30; code >= 1; code-- {
		if alphabet.Validate(byte(code - 1)) {
			return code
		}
	}
	return 1
}

func (s *memSource) Next() (*writer.DigitalRecord, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

func (s *memSource) Rewind() error {
	s.pos = 0
	return nil
}
