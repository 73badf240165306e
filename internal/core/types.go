package core

import (
	"fmt"
	"os"
	"time"
)

// DefaultFieldSize caps the value of a single scalar field (1 MiB).
// Values beyond the cap are silently truncated, matching decoder behavior
// for oversized file parts.
const DefaultFieldSize = 1 << 20

// Limits holds the size and count caps enforced during consumption.
// A zero value disables the corresponding cap.
type Limits struct {
	// FileSize is the per-file byte cap. Bytes beyond it are dropped and
	// the artifact is marked truncated, unless StopOnFileLimit is set.
	FileSize int64

	// FieldSize is the per-field value cap. Zero means DefaultFieldSize.
	FieldSize int64

	// Files is the maximum number of file parts accepted per request.
	Files int

	// TotalSize is the aggregate byte cap across all file parts. It is
	// checked before each sink write; the overflowing chunk is never
	// forwarded.
	TotalSize int64
}

// Options configures one Session.
type Options struct {
	// UseTempFiles selects the temporary-file sink instead of the
	// in-memory sink. The choice is made once per session.
	UseTempFiles bool

	// TempFileDir is the directory for temporary-file sinks.
	// Empty means os.TempDir().
	TempFileDir string

	Limits Limits

	// UploadTimeout is the per-part idle window. If no chunk arrives
	// within it, the part's sink is released and the part is aborted.
	// Zero disables the guard entirely.
	UploadTimeout time.Duration

	// StopOnFileLimit stops consumption with ErrFileSizeLimit when a file
	// part exceeds Limits.FileSize, instead of truncating and continuing.
	// The web layer sets this when abort-on-limit or a custom limit
	// handler is configured.
	StopOnFileLimit bool

	// StopOnFileCount stops consumption with ErrFileCountLimit when the
	// file-part count exceeds Limits.Files. When unset, excess file parts
	// are drained and discarded.
	StopOnFileCount bool

	// ParseNested expands bracket/dot-path keys ("user[name]", "tags[0]")
	// into nested maps and slices on the completed form.
	ParseNested bool

	// Debug enables debug-level lifecycle logging for every part.
	Debug bool
}

// fieldSize returns the effective per-field value cap.
func (o Options) fieldSize() int64 {
	if o.Limits.FieldSize > 0 {
		return o.Limits.FieldSize
	}
	return DefaultFieldSize
}

// tempDir returns the effective temporary-file directory.
func (o Options) tempDir() string {
	if o.TempFileDir != "" {
		return o.TempFileDir
	}
	return os.TempDir()
}

// Form is the completed output of a session: the scalar field mapping and
// the file artifact mapping. Values are a string or an ordered []string
// (fields), a *FileArtifact or an ordered []*FileArtifact (files), or a
// nested tree of maps and slices when ParseNested is enabled.
type Form struct {
	Fields map[string]any
	Files  map[string]any
}

// FileArtifact is the immutable result of one successfully completed file
// part. Exactly one of Data and TempPath is populated, depending on the
// sink variant.
type FileArtifact struct {
	// Name is the sanitized client-supplied filename: path components
	// stripped, length-capped.
	Name string `json:"name"`

	// FieldName is the form field the file arrived under.
	FieldName string `json:"field_name"`

	// Size is the number of bytes delivered to the sink, after truncation.
	Size int64 `json:"size"`

	// Hash is the hex-encoded BLAKE3 digest of the delivered bytes.
	Hash string `json:"hash"`

	// MIMEType is the declared Content-Type of the part, unvalidated.
	MIMEType string `json:"mime_type"`

	// Encoding is the declared Content-Transfer-Encoding, if any.
	Encoding string `json:"encoding,omitempty"`

	// Truncated reports that the part exceeded the per-file cap and bytes
	// beyond it were dropped.
	Truncated bool `json:"truncated"`

	// Data holds the payload for the in-memory sink variant.
	Data []byte `json:"-"`

	// TempPath is the temporary file holding the payload for the
	// temporary-file sink variant.
	TempPath string `json:"-"`
}

// Save writes the artifact's payload to dst. Temporary files are renamed
// into place; in-memory payloads are written out. After a successful Save
// of a temp-file artifact the original TempPath no longer exists.
func (a *FileArtifact) Save(dst string) error {
	if a.TempPath != "" {
		if err := os.Rename(a.TempPath, dst); err != nil {
			return fmt.Errorf("save %s: %w", a.Name, err)
		}
		return nil
	}
	if err := os.WriteFile(dst, a.Data, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", a.Name, err)
	}
	return nil
}

// partState tracks a file part through its lifecycle. New and Streaming
// are the only non-terminal states.
type partState int

const (
	partNew partState = iota
	partStreaming
	partComplete
	partLimitHit
	partAborted
	partErrored
)

// String returns the state name for logging.
func (s partState) String() string {
	switch s {
	case partNew:
		return "new"
	case partStreaming:
		return "streaming"
	case partComplete:
		return "complete"
	case partLimitHit:
		return "limit_hit"
	case partAborted:
		return "aborted"
	case partErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// terminal reports whether the state admits no further transitions.
func (s partState) terminal() bool {
	return s != partNew && s != partStreaming
}

// sessionState tracks the whole session.
type sessionState int

const (
	sessionActive sessionState = iota
	sessionDone
	sessionAborted
	sessionLimited
	sessionErrored
)
