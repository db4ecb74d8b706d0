// Package reader implements the public consumer-facing facade: Open,
// Read, Recycle, and Close, plus the Open-time header validation that
// binds the four on-disk files together.
package reader

import (
	"bufio"
	"io"
	"os"
	"sync"

	"dsqdata/abc"
	"dsqdata/chunk"
	"dsqdata/dsqerr"
	"dsqdata/dsqio/loader"
	"dsqdata/dsqio/unpacker"
	"dsqdata/layout"
	"dsqdata/pipeline"
)

// Config bounds chunk capacity. Zero value is invalid; use DefaultConfig
// or set Limits explicitly.
type Config struct {
	Limits chunk.Limits
}

// DefaultConfig matches the original implementation's fixed constants.
var DefaultConfig = Config{Limits: chunk.DefaultLimits}

// Reader is an open dsqdata database: four file handles, the validated
// alphabet, and the running loader/unpacker pipeline.
type Reader struct {
	stubFile, idxFile, metaFile, psqFile *os.File

	alphabet abc.Alphabet

	outU    *pipeline.Slot
	recycle *pipeline.RecycleStack

	readMu     sync.Mutex
	eofLatched bool

	loaderDone, unpackerDone chan struct{}
}

// Open validates and opens the four files making up basename's
// database, then spawns the unpacker and loader goroutines (in that
// order, per the concurrency model) and returns a ready-to-use Reader.
//
// hint may be nil: the alphabet is then constructed from the database's
// own header. If non-nil, it must agree with the database's alphabet or
// Open fails with an Incompatible error.
func Open(basename string, nconsumers int, hint abc.Alphabet, cfg Config) (*Reader, error) {
	if nconsumers <= 0 {
		return nil, dsqerr.New(dsqerr.Format, "consumer count must be positive, got %d", nconsumers)
	}

	idxFile, err := os.Open(basename + ".dsqi")
	if err != nil {
		return nil, dsqerr.Wrap(dsqerr.NotFound, err, "failed to open index file")
	}
	metaFile, err := os.Open(basename + ".dsqm")
	if err != nil {
		idxFile.Close()
		return nil, dsqerr.Wrap(dsqerr.NotFound, err, "failed to open metadata file")
	}
	psqFile, err := os.Open(basename + ".dsqs")
	if err != nil {
		idxFile.Close()
		metaFile.Close()
		return nil, dsqerr.Wrap(dsqerr.NotFound, err, "failed to open sequence file")
	}
	stubFile, err := os.Open(basename)
	if err != nil {
		idxFile.Close()
		metaFile.Close()
		psqFile.Close()
		return nil, dsqerr.Wrap(dsqerr.NotFound, err, "failed to open stub file")
	}

	r, err := openValidated(stubFile, idxFile, metaFile, psqFile, nconsumers, hint, cfg)
	if err != nil {
		stubFile.Close()
		idxFile.Close()
		metaFile.Close()
		psqFile.Close()
		return nil, err
	}
	return r, nil
}

func openValidated(stubFile, idxFile, metaFile, psqFile *os.File, nconsumers int, hint abc.Alphabet, cfg Config) (*Reader, error) {
	stubLine, err := bufio.NewReader(stubFile).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, dsqerr.Wrap(dsqerr.Format, err, "reading stub file")
	}
	stub, err := layout.ParseStubLine(stubLine)
	if err != nil {
		return nil, err
	}

	idxHeader, err := layout.ReadIndexHeader(idxFile)
	if err != nil {
		return nil, err
	}
	if idxHeader.Tag != stub.Tag {
		return nil, dsqerr.NewField(dsqerr.Format, "tag", "index file tag does not match stub file tag")
	}
	if _, err := layout.CheckMagic(idxHeader.Magic); err != nil {
		return nil, err
	}
	if idxHeader.Flags != 0 {
		return nil, dsqerr.NewField(dsqerr.Format, "flags", "reserved flags field is nonzero (0x%08x)", idxHeader.Flags)
	}

	alphabet, err := resolveAlphabet(idxHeader.Alphabet, hint)
	if err != nil {
		return nil, err
	}
	pack5 := alphabet.Kind() == abc.Protein

	metaHeader, err := layout.ReadFileHeader(metaFile, "metadata")
	if err != nil {
		return nil, err
	}
	if metaHeader.Magic != idxHeader.Magic {
		return nil, dsqerr.NewField(dsqerr.Format, "magic", "metadata file has bad magic")
	}
	if metaHeader.Tag != idxHeader.Tag {
		return nil, dsqerr.NewField(dsqerr.Format, "tag", "metadata file tag does not match")
	}

	psqHeader, err := layout.ReadFileHeader(psqFile, "sequence")
	if err != nil {
		return nil, err
	}
	if psqHeader.Magic != idxHeader.Magic {
		return nil, dsqerr.NewField(dsqerr.Format, "magic", "sequence file has bad magic")
	}
	if psqHeader.Tag != idxHeader.Tag {
		return nil, dsqerr.NewField(dsqerr.Format, "tag", "sequence file tag does not match")
	}

	r := &Reader{
		stubFile: stubFile, idxFile: idxFile, metaFile: metaFile, psqFile: psqFile,
		alphabet:     alphabet,
		outU:         pipeline.NewSlot(),
		recycle:      pipeline.NewRecycleStack(),
		loaderDone:   make(chan struct{}),
		unpackerDone: make(chan struct{}),
	}

	outL := pipeline.NewSlot()
	u := unpacker.New(alphabet, outL, r.outU)
	l := loader.New(idxFile, psqFile, metaFile, cfg.Limits, pack5, nconsumers+2, r.recycle, outL)

	go func() { u.Run(); close(r.unpackerDone) }()
	go func() { l.Run(); close(r.loaderDone) }()

	return r, nil
}

// resolveAlphabet validates hint against the database's own alphabet
// kind, or constructs the database's alphabet when hint is nil.
func resolveAlphabet(kind abc.Kind, hint abc.Alphabet) (abc.Alphabet, error) {
	if hint != nil {
		if hint.Kind() != kind {
			return nil, dsqerr.New(dsqerr.Incompatible, "database uses %s alphabet, caller expected %s", kind, hint.Kind())
		}
		return hint, nil
	}
	a, err := abc.New(kind)
	if err != nil {
		return nil, dsqerr.NewField(dsqerr.Format, "alphabet", "index file has invalid alphabet type %d", uint32(kind))
	}
	return a, nil
}

// Read returns the next chunk in order, blocking until one is available.
// At most one concurrent caller observes io.EOF as the true end of data;
// every subsequent (or concurrently losing) caller also eventually
// observes io.EOF once the flag is latched. A poisoned envelope from
// either worker surfaces here as a plain error.
func (r *Reader) Read() (*chunk.Chunk, error) {
	r.readMu.Lock()
	defer r.readMu.Unlock()

	if r.eofLatched {
		return nil, io.EOF
	}

	env := r.outU.Recv()
	if env.Err != nil {
		r.eofLatched = true
		return nil, env.Err
	}
	if env.Chunk.N == 0 {
		r.eofLatched = true
		r.recycle.Push(env.Chunk)
		return nil, io.EOF
	}
	return env.Chunk, nil
}

// Recycle returns c to the free list for reuse by the loader. It never
// blocks.
func (r *Reader) Recycle(c *chunk.Chunk) {
	r.recycle.Push(c)
}

// Close joins the loader and unpacker goroutines (they exit once the EOF
// handshake has completed the recycle round trip) and closes the four
// file handles.
func (r *Reader) Close() error {
	r.recycle.Close()
	<-r.loaderDone
	<-r.unpackerDone

	var first error
	for _, f := range []*os.File{r.stubFile, r.idxFile, r.metaFile, r.psqFile} {
		if err := f.Close(); err != nil && first == nil {
			first = dsqerr.Wrap(dsqerr.System, err, "closing database file")
		}
	}
	return first
}
