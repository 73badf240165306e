package core

// A Sink is the destination for a single file part's bytes. It is owned by
// exactly one part for its lifetime and never shared.
//
// Write, Size and Hash are valid at any point during streaming; size and
// hash are maintained incrementally so the payload is never re-read.
// Finalize signals end-of-part; for the temporary-file variant writes may
// still be in flight afterwards, and FlushAwait is the only way to learn
// when they have settled.
type Sink interface {
	// Write ingests one chunk. The chunk is owned by the caller and may be
	// reused after Write returns.
	Write(p []byte) error

	// Size returns the bytes accepted so far.
	Size() int64

	// Hash returns the hex-encoded digest of the bytes accepted so far.
	Hash() string

	// Path returns the durable location of the payload, or "" for the
	// in-memory variant.
	Path() string

	// Finalize completes the payload. The in-memory variant returns the
	// full buffer; the temporary-file variant returns nil, with the
	// payload at Path(). No Write may follow Finalize.
	Finalize() ([]byte, error)

	// Release frees the sink's resources: the buffer is dropped, or the
	// backing file deleted (an already-missing file counts as success).
	// Release is idempotent and safe to invoke from any cleanup trigger.
	Release()

	// FlushAwait returns a handle that blocks until every asynchronous
	// write issued by Write has durably completed, returning the first
	// write error if any. The in-memory variant settles immediately.
	FlushAwait() func() error
}

// newSink selects the sink variant for a session. The decision is made
// once here, keyed on UseTempFiles, rather than branched at call sites.
func newSink(opts Options) (Sink, error) {
	if opts.UseTempFiles {
		return newTempFileSink(opts.tempDir())
	}
	return newMemorySink(), nil
}
