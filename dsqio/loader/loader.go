// Package loader implements the loader worker: it reads index records,
// packed residues, and raw metadata bytes off disk and deposits
// populated (but not yet unpacked) chunks into an outbox slot.
package loader

import (
	"io"

	"dsqdata/chunk"
	"dsqdata/dsqerr"
	"dsqdata/layout"
	"dsqdata/pipeline"
)

// Worker is the loader goroutine's state: the three file streams it
// reads from (index, sequence, metadata, each already past its header),
// the chunk budget, and the running cursors carried across loads.
type Worker struct {
	idx  io.Reader
	psq  io.Reader
	meta io.Reader

	lim       chunk.Limits
	pack5     bool
	maxChunks int
	created   int

	recycle *pipeline.RecycleStack
	out     *pipeline.Slot

	staged   []layout.Record
	psqLast  int64
	metaLast int64
	i0       int64
}

// New builds a loader worker. maxChunks is C+2, where C is the consumer
// count: the cap on how many distinct chunk buffers the loader will ever
// allocate before recycling becomes mandatory.
func New(idx, psq, meta io.Reader, lim chunk.Limits, pack5 bool, maxChunks int, recycle *pipeline.RecycleStack, out *pipeline.Slot) *Worker {
	return &Worker{
		idx: idx, psq: psq, meta: meta,
		lim: lim, pack5: pack5, maxChunks: maxChunks,
		recycle: recycle, out: out,
		staged: make([]layout.Record, 0, lim.MaxSeq),
	}
}

// Run executes the loader's main loop until it sends an EOF chunk or a
// poisoned envelope, then drains the recycle stack for every chunk it
// ever created before returning.
func (w *Worker) Run() {
	for {
		c, ok := w.acquireChunk()
		if !ok {
			w.out.Send(pipeline.Envelope{Err: dsqerr.New(dsqerr.System, "recycle stack closed while the loader was still producing chunks")})
			w.shutdown()
			return
		}

		eof, err := w.load(c)
		if err != nil {
			w.out.Send(pipeline.Envelope{Err: err})
			w.shutdown()
			return
		}

		w.out.Send(pipeline.Envelope{Chunk: c})
		if eof {
			w.shutdown()
			return
		}
	}
}

// acquireChunk returns a chunk buffer for the next load: a fresh one
// while under maxChunks, otherwise one popped off the recycle stack.
func (w *Worker) acquireChunk() (*chunk.Chunk, bool) {
	if w.created < w.maxChunks {
		w.created++
		return chunk.New(w.lim, w.pack5), true
	}
	c, ok := w.recycle.Pop()
	if !ok {
		return nil, false
	}
	c.Reset()
	return c, true
}

// shutdown drains the recycle stack until every chunk this worker ever
// created has made its round trip back, per the spec's chunk-lifecycle
// accounting. In a garbage-collected runtime nothing further needs
// destroying, but waiting for the round trip still matters: the loader
// does not return until every chunk it created has been recycled, or
// until the recycle stack is closed and empty, whichever comes first.
func (w *Worker) shutdown() {
	for i := 0; i < w.created; i++ {
		if _, ok := w.recycle.Pop(); !ok {
			return
		}
	}
}

// refill shifts the staged buffer's carried-over records forward (a
// no-op here, since staged already holds them at its front) and reads
// more index records until it holds MaxSeq or the index file is
// exhausted.
func (w *Worker) refill() (int, error) {
	buf := make([]byte, layout.RecordSize)
	for len(w.staged) < w.lim.MaxSeq {
		_, err := io.ReadFull(w.idx, buf)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			return 0, dsqerr.New(dsqerr.Format, "index file record truncated")
		}
		if err != nil {
			return 0, dsqerr.Wrap(dsqerr.System, err, "reading index file")
		}
		w.staged = append(w.staged, layout.DecodeRecord(buf))
	}
	return len(w.staged), nil
}

// computeNload finds the largest prefix of the nidx staged records whose
// packets all fit within one chunk's MaxPacket budget, using a linear
// check of the whole-buffer case and a binary search otherwise.
func (w *Worker) computeNload(nidx int) (int, error) {
	fits := func(k int) bool {
		return w.staged[k-1].PsqEnd-w.psqLast <= int64(w.lim.MaxPacket)
	}
	if !fits(1) {
		return 0, dsqerr.New(dsqerr.Format, "a single sequence's packets exceed the chunk's packet budget")
	}
	if fits(nidx) {
		return nidx, nil
	}
	lo, hi := 1, nidx
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// load fills one chunk from the current file cursors, returning
// eof = true when the index file is exhausted (an empty chunk was
// produced instead).
func (w *Worker) load(c *chunk.Chunk) (eof bool, err error) {
	nidx, err := w.refill()
	if err != nil {
		return false, err
	}
	if nidx == 0 {
		c.SetLoaded(w.i0, 0, 0, 0)
		return true, nil
	}

	nload, err := w.computeNload(nidx)
	if err != nil {
		return false, err
	}

	npackets := int(w.staged[nload-1].PsqEnd - w.psqLast)
	nmeta := int(w.staged[nload-1].MetaEnd - w.metaLast)

	pbuf := c.PacketBuf(npackets)
	if _, err := io.ReadFull(w.psq, pbuf); err != nil {
		return false, dsqerr.Wrap(dsqerr.System, err, "reading sequence file")
	}
	mbuf := c.MetadataBuf(nmeta)
	if _, err := io.ReadFull(w.meta, mbuf); err != nil {
		return false, dsqerr.Wrap(dsqerr.System, err, "reading metadata file")
	}

	c.SetLoaded(w.i0, nload, npackets, nmeta)

	w.psqLast = w.staged[nload-1].PsqEnd
	w.metaLast = w.staged[nload-1].MetaEnd
	w.i0 += int64(nload)

	remainder := copy(w.staged, w.staged[nload:])
	w.staged = w.staged[:remainder]

	return false, nil
}
