package core

// session.go is the request coordinator: one Session per multipart body.
// It wires the decoder's parts to sinks, the idle guard, the limit
// enforcement and the cleanup registry, and defers completion until the
// flush barrier settles.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// chunkSize is the read granularity for file parts.
const chunkSize = 32 * 1024

// Session processes one multipart request body. It owns the aggregate
// byte counter, the cleanup registry and the flush barrier, and is
// consumed by a single goroutine; only the idle-guard timers run beside
// it, and they touch nothing but their own part's release entry.
type Session struct {
	id       string
	opts     Options
	log      *slog.Logger
	registry *CleanupRegistry
	flush    *errgroup.Group

	total     int64
	fileCount int
	fields    map[string]any
	files     map[string]any
	state     sessionState
}

// NewSession creates a session for one request. log may be nil, in which
// case the default logger is used.
func NewSession(opts Options, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.New().String()
	return &Session{
		id:       id,
		opts:     opts,
		log:      log.With("upload_session", id),
		registry: &CleanupRegistry{},
		flush:    &errgroup.Group{},
		fields:   make(map[string]any),
		files:    make(map[string]any),
	}
}

// BytesConsumed returns the aggregate bytes delivered to sinks so far.
func (s *Session) BytesConsumed() int64 { return s.total }

// Cleanup releases every sink the session ever created. Individual
// entries are idempotent, so Cleanup is safe to call any number of times
// and from any failure path.
func (s *Session) Cleanup() { s.registry.RunAll() }

// Consume reads the decoder to completion and returns the parsed form.
//
// On limit, abort and decoding errors the returned form is nil and every
// sink has been released. On a flush failure the already-built form is
// returned alongside the error so callers that tolerate partial results
// can inspect it.
func (s *Session) Consume(ctx context.Context, mr *multipart.Reader) (*Form, error) {
	if s.state != sessionActive {
		return nil, fmt.Errorf("session already finished")
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return s.finish()
		}
		if err != nil {
			return nil, s.fail(ctx, err)
		}

		if part.FileName() == "" {
			if err := s.consumeField(part); err != nil {
				return nil, s.fail(ctx, err)
			}
			continue
		}
		if err := s.consumeFile(part); err != nil {
			return nil, s.fail(ctx, err)
		}
	}
}

// consumeField folds one scalar part into the field mapping. Values are
// capped at Limits.FieldSize; overflow is read off and dropped so the
// decoder stays aligned on the next boundary.
func (s *Session) consumeField(part *multipart.Part) error {
	name := part.FormName()
	if name == "" {
		_, err := io.Copy(io.Discard, part)
		return err
	}

	var b strings.Builder
	if _, err := io.Copy(&b, io.LimitReader(part, s.opts.fieldSize())); err != nil {
		return err
	}
	if _, err := io.Copy(io.Discard, part); err != nil {
		return err
	}

	addField(s.fields, name, b.String())
	if s.opts.Debug {
		s.log.Debug("field consumed", "field", name, "bytes", b.Len())
	}
	return nil
}

// consumeFile streams one file part into a freshly selected sink.
func (s *Session) consumeFile(part *multipart.Part) error {
	s.fileCount++
	if max := s.opts.Limits.Files; max > 0 && s.fileCount > max {
		if s.opts.StopOnFileCount {
			return fmt.Errorf("%w: %d files", ErrFileCountLimit, s.fileCount)
		}
		// No handler configured: the excess part is drained and
		// discarded without ever allocating a sink.
		s.log.Warn("file count limit reached, discarding part",
			"field", part.FormName(),
			"filename", part.FileName(),
			"limit", max,
		)
		_, err := io.Copy(io.Discard, part)
		return err
	}

	p, err := s.newFilePart(part)
	if err != nil {
		return err
	}
	return s.streamFilePart(part, p)
}

// newFilePart resolves the filename, selects a sink, registers its
// release action and arms the idle guard.
func (s *Session) newFilePart(part *multipart.Part) (*filePart, error) {
	sink, err := newSink(s.opts)
	if err != nil {
		return nil, err
	}

	p := &filePart{
		fieldName: part.FormName(),
		fileName:  sanitizeFileName(part.FileName()),
		mimeType:  part.Header.Get("Content-Type"),
		encoding:  part.Header.Get("Content-Transfer-Encoding"),
		sink:      sink,
		state:     partNew,
	}
	p.release = s.registry.Add(sink.Release)
	p.guard = newIdleGuard(s.opts.UploadTimeout, func() {
		s.log.Warn("file part stalled, releasing sink",
			"field", p.fieldName,
			"filename", p.fileName,
			"bytes", p.size,
		)
		p.release()
	})

	if s.opts.Debug {
		s.log.Debug("file part started",
			"field", p.fieldName,
			"filename", p.fileName,
			"mime_type", p.mimeType,
			"temp_path", sink.Path(),
		)
	}
	return p, nil
}

// streamFilePart runs the part's read loop: per-chunk idle guard touch,
// per-file cap with truncation semantics, aggregate cap strictly before
// the sink write, and terminal transition on end/limit/error/stall.
func (s *Session) streamFilePart(part *multipart.Part, p *filePart) error {
	p.transition(partStreaming)

	buf := make([]byte, chunkSize)
	fileCap := s.opts.Limits.FileSize

	for {
		n, rerr := part.Read(buf)

		if p.guard.Stalled() {
			// The guard already released this part's sink. Drain the
			// rest of the part so the decoder can move on; siblings
			// are unaffected.
			p.transition(partAborted)
			if _, err := io.Copy(io.Discard, part); err != nil {
				return err
			}
			return nil
		}

		if n > 0 {
			p.guard.Touch()
			chunk := buf[:n]

			if fileCap > 0 && p.size+int64(n) > fileCap {
				if s.opts.StopOnFileLimit {
					p.transition(partLimitHit)
					return fmt.Errorf("%w: field %q", ErrFileSizeLimit, p.fieldName)
				}
				// Decoder semantics: forward up to the cap, drop the
				// rest, mark the artifact truncated.
				if keep := fileCap - p.size; keep > 0 {
					if err := s.forward(p, chunk[:keep]); err != nil {
						return err
					}
				}
				p.truncated = true
			} else if err := s.forward(p, chunk); err != nil {
				return err
			}
		}

		if rerr == io.EOF {
			return s.completePart(p)
		}
		if rerr != nil {
			p.transition(partErrored)
			return rerr
		}
	}
}

// forward delivers one chunk to the part's sink. The aggregate cap is
// checked strictly before the write, so a sink never observes bytes
// beyond it and the overflowing chunk is never forwarded.
func (s *Session) forward(p *filePart, chunk []byte) error {
	if max := s.opts.Limits.TotalSize; max > 0 && s.total+int64(len(chunk)) > max {
		p.transition(partLimitHit)
		return fmt.Errorf("%w: %d bytes consumed", ErrTotalSizeLimit, s.total)
	}
	if err := p.sink.Write(chunk); err != nil {
		p.transition(partErrored)
		return err
	}
	s.total += int64(len(chunk))
	p.size += int64(len(chunk))
	return nil
}

// completePart finalizes the sink, publishes the artifact and registers
// the sink's flush handle with the completion barrier.
func (s *Session) completePart(p *filePart) error {
	data, err := p.sink.Finalize()
	if err != nil {
		p.transition(partErrored)
		return err
	}
	if !p.transition(partComplete) {
		return nil
	}

	artifact := &FileArtifact{
		Name:      p.fileName,
		FieldName: p.fieldName,
		Size:      p.sink.Size(),
		Hash:      p.sink.Hash(),
		MIMEType:  p.mimeType,
		Encoding:  p.encoding,
		Truncated: p.truncated,
	}
	if path := p.sink.Path(); path != "" {
		artifact.TempPath = path
	} else {
		artifact.Data = data
	}

	addFile(s.files, p.fieldName, artifact)
	s.flush.Go(p.sink.FlushAwait())

	if s.opts.Debug {
		s.log.Debug("file part complete",
			"field", p.fieldName,
			"filename", p.fileName,
			"bytes", artifact.Size,
			"hash", artifact.Hash,
			"truncated", artifact.Truncated,
		)
	}
	return nil
}

// finish waits out the flush barrier and publishes the form. The barrier
// is waited exactly once; a flush failure surfaces as ErrFlush with the
// already-built mappings still attached. Completed temp files are kept in
// that case so callers can inspect what did land.
func (s *Session) finish() (*Form, error) {
	flushErr := s.flush.Wait()

	form := &Form{Fields: s.fields, Files: s.files}
	if s.opts.ParseNested {
		form.Fields = ExpandNested(form.Fields)
		form.Files = ExpandNested(form.Files)
	}

	if flushErr != nil {
		s.state = sessionErrored
		return form, flushErr
	}
	s.state = sessionDone
	if s.opts.Debug {
		s.log.Debug("session complete",
			"fields", len(form.Fields),
			"files", len(form.Files),
			"bytes", s.total,
		)
	}
	return form, nil
}

// fail runs full cleanup and classifies the error. Session-fatal paths
// always release every sink before any further signaling.
func (s *Session) fail(ctx context.Context, err error) error {
	s.registry.RunAll()

	switch {
	case errors.Is(err, ErrFileSizeLimit),
		errors.Is(err, ErrTotalSizeLimit),
		errors.Is(err, ErrFileCountLimit):
		s.state = sessionLimited
		return err
	case ctx.Err() != nil:
		s.state = sessionAborted
		s.log.Info("upload aborted by client", "bytes", s.total)
		return fmt.Errorf("%w: %v", ErrAborted, err)
	default:
		s.state = sessionErrored
		return fmt.Errorf("%w: %v", ErrDecoding, err)
	}
}
