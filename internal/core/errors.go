package core

// errors.go defines the upload error taxonomy and its mapping to
// user-friendly messages.
//
// Sentinel errors classify failures; callers test them with errors.Is.
// MapError converts any pipeline error into a message/code pair suitable
// for a client response, with the code quotable to support staff.

import (
	"errors"
	"strings"
)

var (
	// ErrDecoding reports a malformed multipart stream.
	ErrDecoding = errors.New("malformed multipart stream")

	// ErrFileSizeLimit reports a file part that exceeded the per-file cap
	// while StopOnFileLimit was set.
	ErrFileSizeLimit = errors.New("file size limit exceeded")

	// ErrTotalSizeLimit reports that the aggregate byte cap was exceeded.
	ErrTotalSizeLimit = errors.New("total upload size limit exceeded")

	// ErrFileCountLimit reports that the file-part count cap was exceeded
	// while StopOnFileCount was set.
	ErrFileCountLimit = errors.New("file count limit exceeded")

	// ErrFlush reports that a sink's asynchronous writes failed to settle.
	ErrFlush = errors.New("sink flush failed")

	// ErrAborted reports that the client disconnected mid-upload.
	ErrAborted = errors.New("client aborted upload")
)

// UserMessage is a client-safe rendering of a pipeline error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

// MapError translates a pipeline error into a user-friendly message with a
// support code. Unknown errors get a generic message so internal details
// never leak to clients.
func MapError(err error) UserMessage {
	switch {
	case errors.Is(err, ErrFileSizeLimit):
		return UserMessage{
			Message: "One of the uploaded files is too large",
			Action:  "Upload a smaller file or split it into parts",
			Code:    "UP001",
		}
	case errors.Is(err, ErrTotalSizeLimit):
		return UserMessage{
			Message: "The upload exceeds the total size limit",
			Action:  "Reduce the number or size of uploaded files",
			Code:    "UP002",
		}
	case errors.Is(err, ErrFileCountLimit):
		return UserMessage{
			Message: "Too many files in one upload",
			Action:  "Upload fewer files per request",
			Code:    "UP003",
		}
	case errors.Is(err, ErrDecoding):
		return UserMessage{
			Message: "The upload could not be read",
			Action:  "Check that the request is valid multipart/form-data",
			Code:    "UP005",
		}
	case errors.Is(err, ErrFlush):
		return UserMessage{
			Message: "The upload could not be stored",
			Action:  "Please try again in a few moments",
			Code:    "UP006",
		}
	case errors.Is(err, ErrAborted):
		return UserMessage{
			Message: "The upload was interrupted",
			Action:  "Please retry the upload",
			Code:    "UP007",
		}
	case err != nil && strings.Contains(err.Error(), "timeout"):
		return UserMessage{
			Message: "The upload timed out",
			Action:  "Check your connection and try again",
			Code:    "UP008",
		}
	default:
		return UserMessage{
			Message: "The upload failed",
			Action:  "Please try again",
			Code:    "UP000",
		}
	}
}
