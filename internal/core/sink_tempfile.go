package core

// sink_tempfile.go implements the temporary-file sink variant.
//
// Chunks are handed to a dedicated writer goroutine through a bounded
// queue, so disk latency never blocks hashing and counting on the event
// path; a slow disk eventually back-pressures the producer instead of
// queueing unbounded buffers. Writes issued near end-of-part may still be
// in flight when the part completes; FlushAwait is how the session's
// completion barrier waits them out.

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// flushQueueDepth bounds the number of chunks queued for the writer
// goroutine. A full queue blocks Write, which stops the session from
// reading further source bytes until the disk catches up.
const flushQueueDepth = 4

type tempFileSink struct {
	path   string
	queue  chan []byte
	done   chan struct{}
	hasher *blake3.Hasher

	mu     sync.Mutex
	closed bool
	size   int64

	// writeErr is set by the writer goroutine before done is closed.
	writeErr   error
	removeOnce sync.Once
}

// newTempFileSink creates a uniquely named file in dir and starts the
// writer goroutine. The directory is created if missing.
func newTempFileSink(dir string) (*tempFileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}

	path := filepath.Join(dir, "upload-"+uuid.New().String()+".tmp")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}

	s := &tempFileSink{
		path:   path,
		queue:  make(chan []byte, flushQueueDepth),
		done:   make(chan struct{}),
		hasher: blake3.New(),
	}

	go func() {
		var werr error
		for buf := range s.queue {
			if werr != nil {
				continue // drain so producers never block on a dead file
			}
			if _, err := f.Write(buf); err != nil {
				werr = err
			}
		}
		if werr == nil {
			werr = f.Sync()
		}
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		s.writeErr = werr
		close(s.done)
	}()

	return s, nil
}

func (s *tempFileSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.hasher.Write(p)
	s.size += int64(len(p))

	// The caller reuses its chunk buffer, so the queued copy must be ours.
	buf := make([]byte, len(p))
	copy(buf, p)
	s.queue <- buf
	return nil
}

func (s *tempFileSink) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *tempFileSink) Hash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hex.EncodeToString(s.hasher.Sum(nil))
}

func (s *tempFileSink) Path() string { return s.path }

func (s *tempFileSink) Finalize() ([]byte, error) {
	s.closeQueue()
	return nil, nil
}

// Release closes the queue, waits for the writer to stop touching the
// file, and deletes it. An already-deleted file counts as success.
func (s *tempFileSink) Release() {
	s.closeQueue()
	<-s.done
	s.removeOnce.Do(func() {
		_ = os.Remove(s.path)
	})
}

func (s *tempFileSink) FlushAwait() func() error {
	return func() error {
		<-s.done
		if s.writeErr != nil {
			return fmt.Errorf("%w: %s: %v", ErrFlush, filepath.Base(s.path), s.writeErr)
		}
		return nil
	}
}

// closeQueue stops accepting writes and lets the writer goroutine finish.
func (s *tempFileSink) closeQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}
