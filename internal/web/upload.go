package web

// upload.go is the request-facing half of the upload coordinator: it
// fast-rejects oversized declared lengths before the decoder exists, runs
// the core session, and owns response behavior for every failure class.
// The session itself (internal/core) owns cleanup; everything here is
// response policy.

import (
	"errors"
	"io"
	"net/http"

	"github.com/formgate/formgate/internal/config"
	"github.com/formgate/formgate/internal/core"
	"github.com/formgate/formgate/internal/logging"
)

// Processor turns multipart requests into parsed forms.
type Processor struct {
	opts core.Options

	abortOnLimit    bool
	onLimitStatus   int
	responseOnLimit string

	// limitHandler, when set, takes over the response on any size limit
	// instead of the default close-with-status behavior.
	limitHandler http.HandlerFunc

	// numFilesLimitHandler, when set, takes over the response on a
	// file-count overflow. Without it the core discards excess parts
	// and the request proceeds.
	numFilesLimitHandler http.HandlerFunc
}

// ProcessorOption customizes a Processor beyond its config defaults.
type ProcessorOption func(*Processor)

// WithLimitHandler installs a custom handler for file-size and total-size
// limit violations.
func WithLimitHandler(h http.HandlerFunc) ProcessorOption {
	return func(p *Processor) { p.limitHandler = h }
}

// WithNumFilesLimitHandler installs a custom handler for file-count
// overflow.
func WithNumFilesLimitHandler(h http.HandlerFunc) ProcessorOption {
	return func(p *Processor) { p.numFilesLimitHandler = h }
}

// NewProcessor builds a Processor from upload configuration.
func NewProcessor(cfg config.UploadConfig, opts ...ProcessorOption) *Processor {
	p := &Processor{
		opts: core.Options{
			UseTempFiles: cfg.UseTempFiles,
			TempFileDir:  cfg.TempFileDir,
			Limits: core.Limits{
				FileSize:  cfg.MaxFileSize,
				FieldSize: cfg.MaxFieldSize,
				Files:     cfg.MaxFiles,
				TotalSize: cfg.MaxTotalSize,
			},
			UploadTimeout: cfg.IdleTimeout,
			ParseNested:   cfg.ParseNested,
			Debug:         cfg.Debug,
		},
		abortOnLimit:    cfg.AbortOnLimit,
		onLimitStatus:   cfg.OnLimitStatus,
		responseOnLimit: cfg.ResponseOnLimit,
	}
	if p.onLimitStatus == 0 {
		p.onLimitStatus = http.StatusBadRequest
	}
	if p.responseOnLimit == "" {
		p.responseOnLimit = "Bad Request"
	}
	for _, opt := range opts {
		opt(p)
	}

	// A per-file overflow stops the session only when someone will
	// respond to it; otherwise the part is truncated and the upload
	// continues. File-count overflow likewise only stops the session
	// when a handler is installed.
	p.opts.StopOnFileLimit = p.abortOnLimit || p.limitHandler != nil
	p.opts.StopOnFileCount = p.numFilesLimitHandler != nil
	return p
}

// Process consumes the request body through the pipeline. It returns the
// parsed form and true on success. On any failure it has already written
// (or deliberately withheld) the response and returns false; for a flush
// failure the partially built form is returned alongside false.
func (p *Processor) Process(w http.ResponseWriter, r *http.Request) (*core.Form, bool) {
	log := logging.FromContext(r.Context())

	// Fast-reject on the declared length: the limit response fires
	// before the decoder or any sink is constructed.
	if max := p.opts.Limits.TotalSize; max > 0 && r.ContentLength > max {
		log.Warn("upload rejected by declared length",
			"content_length", r.ContentLength,
			"limit", max,
		)
		p.respondLimit(w, r)
		return nil, false
	}

	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, r, core.ErrDecoding, http.StatusBadRequest)
		return nil, false
	}

	session := core.NewSession(p.opts, log)
	form, err := session.Consume(r.Context(), mr)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrAborted):
			// The client is gone; cleanup already ran and there is no
			// one left to respond to.
			log.Info("upload aborted by client", "error", err)
			return nil, false

		case errors.Is(err, core.ErrFileCountLimit):
			p.numFilesLimitHandler(w, r)
			return nil, false

		case errors.Is(err, core.ErrFileSizeLimit),
			errors.Is(err, core.ErrTotalSizeLimit):
			p.respondLimit(w, r)
			return nil, false

		case errors.Is(err, core.ErrFlush):
			respondError(w, r, err, http.StatusInternalServerError)
			return form, false

		default:
			respondError(w, r, err, http.StatusBadRequest)
			return nil, false
		}
	}

	return form, true
}

// respondLimit answers a size-limit violation: the custom handler when
// installed, otherwise the configured close-with-status default. The
// total-size default deliberately reuses the per-file close path.
func (p *Processor) respondLimit(w http.ResponseWriter, r *http.Request) {
	if p.limitHandler != nil {
		p.limitHandler(w, r)
		return
	}
	w.Header().Set("Connection", "close")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(p.onLimitStatus)
	io.WriteString(w, p.responseOnLimit)
}
