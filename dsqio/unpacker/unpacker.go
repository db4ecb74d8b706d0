// Package unpacker implements the unpacker worker: it drains the
// loader's outbox, decodes each chunk's packed residues and metadata in
// place, and forwards the result to the consumer-facing outbox.
package unpacker

import (
	"dsqdata/abc"
	"dsqdata/pipeline"
)

// Worker is the unpacker goroutine's state.
type Worker struct {
	alphabet abc.Alphabet
	in       *pipeline.Slot
	out      *pipeline.Slot
}

// New builds an unpacker worker reading from in and writing to out.
func New(alphabet abc.Alphabet, in, out *pipeline.Slot) *Worker {
	return &Worker{alphabet: alphabet, in: in, out: out}
}

// Run drains in until it forwards either a poisoned envelope or the EOF
// chunk (N == 0), then returns.
func (w *Worker) Run() {
	for {
		env := w.in.Recv()
		if env.Err != nil {
			w.out.Send(env)
			return
		}

		c := env.Chunk
		if c.N != 0 {
			if err := c.Unpack(w.alphabet); err != nil {
				w.out.Send(pipeline.Envelope{Err: err})
				return
			}
		}

		w.out.Send(pipeline.Envelope{Chunk: c})
		if c.N == 0 {
			return
		}
	}
}
