package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// buildForm assembles a multipart body and returns a reader over it.
func buildForm(t *testing.T, build func(w *multipart.Writer)) *multipart.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	build(w)
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return multipart.NewReader(&buf, w.Boundary())
}

func mustWriteField(t *testing.T, w *multipart.Writer, name, value string) {
	t.Helper()
	if err := w.WriteField(name, value); err != nil {
		t.Fatalf("write field %s: %v", name, err)
	}
}

func mustWriteFile(t *testing.T, w *multipart.Writer, field, name string, content []byte) {
	t.Helper()
	fw, err := w.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("create file part %s: %v", field, err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file part %s: %v", field, err)
	}
}

func TestSession_FieldsAndFiles(t *testing.T) {
	content := []byte("file payload bytes")
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteField(t, w, "name", "bo")
		mustWriteFile(t, w, "avatar", "a.png", content)
	})

	s := NewSession(Options{}, nil)
	form, err := s.Consume(context.Background(), mr)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if got := form.Fields["name"]; got != "bo" {
		t.Errorf("Fields[name] = %#v, want \"bo\"", got)
	}

	artifact, ok := form.Files["avatar"].(*FileArtifact)
	if !ok {
		t.Fatalf("Files[avatar] = %#v, want *FileArtifact", form.Files["avatar"])
	}
	if artifact.Name != "a.png" {
		t.Errorf("Name = %q, want %q", artifact.Name, "a.png")
	}
	if artifact.FieldName != "avatar" {
		t.Errorf("FieldName = %q, want %q", artifact.FieldName, "avatar")
	}
	if artifact.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", artifact.Size, len(content))
	}
	if artifact.Hash != blake3Hex(content) {
		t.Errorf("Hash = %s, want %s", artifact.Hash, blake3Hex(content))
	}
	if !bytes.Equal(artifact.Data, content) {
		t.Errorf("Data = %q, want %q", artifact.Data, content)
	}
	if artifact.TempPath != "" {
		t.Errorf("TempPath = %q, want empty for memory variant", artifact.TempPath)
	}
	if artifact.Truncated {
		t.Error("Truncated = true, want false")
	}
	if s.BytesConsumed() != int64(len(content)) {
		t.Errorf("BytesConsumed() = %d, want %d", s.BytesConsumed(), len(content))
	}
}

func TestSession_RepeatedFieldOrder(t *testing.T) {
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteField(t, w, "tag", "a")
		mustWriteField(t, w, "tag", "b")
	})

	form, err := NewSession(Options{}, nil).Consume(context.Background(), mr)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	got, ok := form.Fields["tag"].([]string)
	if !ok || len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Fields[tag] = %#v, want [a b]", form.Fields["tag"])
	}
}

func TestSession_RepeatedFileField(t *testing.T) {
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteFile(t, w, "photo", "one.jpg", []byte("first"))
		mustWriteFile(t, w, "photo", "two.jpg", []byte("second"))
	})

	form, err := NewSession(Options{}, nil).Consume(context.Background(), mr)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	artifacts, ok := form.Files["photo"].([]*FileArtifact)
	if !ok || len(artifacts) != 2 {
		t.Fatalf("Files[photo] = %#v, want two artifacts", form.Files["photo"])
	}
	if artifacts[0].Name != "one.jpg" || artifacts[1].Name != "two.jpg" {
		t.Error("artifacts out of arrival order")
	}
	if artifacts[0].Hash == artifacts[1].Hash {
		t.Error("distinct payloads produced the same hash")
	}
}

func TestSession_FileTruncation(t *testing.T) {
	content := []byte("0123456789abcdefghij") // 20 bytes
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteFile(t, w, "doc", "doc.txt", content)
		mustWriteField(t, w, "after", "still parsed")
	})

	opts := Options{Limits: Limits{FileSize: 10}}
	s := NewSession(opts, nil)
	form, err := s.Consume(context.Background(), mr)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	artifact := form.Files["doc"].(*FileArtifact)
	if !artifact.Truncated {
		t.Error("Truncated = false, want true")
	}
	if artifact.Size != 10 {
		t.Errorf("Size = %d, want exactly the cap", artifact.Size)
	}
	if !bytes.Equal(artifact.Data, content[:10]) {
		t.Errorf("Data = %q, want first 10 bytes", artifact.Data)
	}
	if s.BytesConsumed() != 10 {
		t.Errorf("BytesConsumed() = %d, want 10", s.BytesConsumed())
	}
	if form.Fields["after"] != "still parsed" {
		t.Error("parts after the truncated file were lost")
	}
}

func TestSession_StopOnFileLimit(t *testing.T) {
	dir := t.TempDir()
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteFile(t, w, "doc", "doc.txt", bytes.Repeat([]byte("x"), 100))
	})

	opts := Options{
		UseTempFiles:    true,
		TempFileDir:     dir,
		Limits:          Limits{FileSize: 10},
		StopOnFileLimit: true,
	}
	form, err := NewSession(opts, nil).Consume(context.Background(), mr)

	if !errors.Is(err, ErrFileSizeLimit) {
		t.Fatalf("Consume() error = %v, want ErrFileSizeLimit", err)
	}
	if form != nil {
		t.Error("form returned despite limit stop")
	}
	assertDirEmpty(t, dir)
}

func TestSession_TotalSizeLimit(t *testing.T) {
	dir := t.TempDir()
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteFile(t, w, "a", "a.bin", bytes.Repeat([]byte("a"), 8))
		mustWriteFile(t, w, "b", "b.bin", bytes.Repeat([]byte("b"), 8))
	})

	opts := Options{
		UseTempFiles: true,
		TempFileDir:  dir,
		Limits:       Limits{TotalSize: 10},
	}
	s := NewSession(opts, nil)
	form, err := s.Consume(context.Background(), mr)

	if !errors.Is(err, ErrTotalSizeLimit) {
		t.Fatalf("Consume() error = %v, want ErrTotalSizeLimit", err)
	}
	if form != nil {
		t.Error("form returned despite limit stop")
	}
	if s.BytesConsumed() > 10 {
		t.Errorf("BytesConsumed() = %d, exceeds the aggregate cap", s.BytesConsumed())
	}
	assertDirEmpty(t, dir)
}

func TestSession_FileCountDiscard(t *testing.T) {
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteFile(t, w, "one", "one.txt", []byte("kept"))
		mustWriteFile(t, w, "two", "two.txt", []byte("discarded"))
		mustWriteField(t, w, "after", "ok")
	})

	opts := Options{Limits: Limits{Files: 1}}
	form, err := NewSession(opts, nil).Consume(context.Background(), mr)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if _, ok := form.Files["one"]; !ok {
		t.Error("first file missing")
	}
	if _, ok := form.Files["two"]; ok {
		t.Error("excess file was kept")
	}
	if form.Fields["after"] != "ok" {
		t.Error("field after the discarded part was lost")
	}
}

func TestSession_FileCountStop(t *testing.T) {
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteFile(t, w, "one", "one.txt", []byte("kept"))
		mustWriteFile(t, w, "two", "two.txt", []byte("overflow"))
	})

	opts := Options{Limits: Limits{Files: 1}, StopOnFileCount: true}
	form, err := NewSession(opts, nil).Consume(context.Background(), mr)

	if !errors.Is(err, ErrFileCountLimit) {
		t.Fatalf("Consume() error = %v, want ErrFileCountLimit", err)
	}
	if form != nil {
		t.Error("form returned despite count stop")
	}
}

func TestSession_ParseNested(t *testing.T) {
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteField(t, w, "user[name]", "bo")
		mustWriteField(t, w, "user[email]", "bo@example.com")
		mustWriteFile(t, w, "docs[avatar]", "a.png", []byte("img"))
	})

	form, err := NewSession(Options{ParseNested: true}, nil).Consume(context.Background(), mr)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	user, ok := form.Fields["user"].(map[string]any)
	if !ok {
		t.Fatalf("Fields[user] = %#v, want nested map", form.Fields["user"])
	}
	if user["name"] != "bo" || user["email"] != "bo@example.com" {
		t.Errorf("nested user = %#v", user)
	}

	docs, ok := form.Files["docs"].(map[string]any)
	if !ok {
		t.Fatalf("Files[docs] = %#v, want nested map", form.Files["docs"])
	}
	if _, ok := docs["avatar"].(*FileArtifact); !ok {
		t.Errorf("nested avatar = %#v, want *FileArtifact", docs["avatar"])
	}
}

func TestSession_NestedDisabledKeepsFlatKeys(t *testing.T) {
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteField(t, w, "user[name]", "bo")
	})

	form, err := NewSession(Options{}, nil).Consume(context.Background(), mr)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if form.Fields["user[name]"] != "bo" {
		t.Errorf("Fields = %#v, want flat key preserved", form.Fields)
	}
}

func TestSession_TempFiles(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("chunky"), 10000) // several read chunks
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteFile(t, w, "big", "big.bin", content)
	})

	opts := Options{UseTempFiles: true, TempFileDir: dir}
	s := NewSession(opts, nil)
	form, err := s.Consume(context.Background(), mr)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	artifact := form.Files["big"].(*FileArtifact)
	if artifact.TempPath == "" {
		t.Fatal("TempPath empty for temp-file variant")
	}
	if artifact.Data != nil {
		t.Error("Data populated for temp-file variant")
	}

	// Consume returned after the flush barrier, so the payload must be
	// fully on disk already.
	got, err := os.ReadFile(artifact.TempPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("temp file holds %d bytes, want %d", len(got), len(content))
	}

	// Save moves the payload into place; the temp file is gone afterwards.
	dst := filepath.Join(t.TempDir(), "final.bin")
	if err := artifact.Save(dst); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(artifact.TempPath); !os.IsNotExist(err) {
		t.Error("temp file still present after Save")
	}
	saved, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile(saved) error = %v", err)
	}
	if !bytes.Equal(saved, content) {
		t.Error("saved file does not match payload")
	}

	// Cleanup after Save tolerates the already-moved file.
	s.Cleanup()
}

func TestSession_CleanupRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteFile(t, w, "a", "a.bin", []byte("payload"))
	})

	opts := Options{UseTempFiles: true, TempFileDir: dir}
	s := NewSession(opts, nil)
	if _, err := s.Consume(context.Background(), mr); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	s.Cleanup()
	s.Cleanup() // safe to repeat
	assertDirEmpty(t, dir)
}

func TestSession_AbortReleasesEverything(t *testing.T) {
	dir := t.TempDir()

	// A body cut off mid-part: the first file completes, the second dies.
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	mustWriteFile(t, w, "done", "done.bin", []byte("complete part"))
	mustWriteFile(t, w, "cut", "cut.bin", bytes.Repeat([]byte("y"), 4096))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()[:buf.Len()-2048]
	mr := multipart.NewReader(bytes.NewReader(raw), w.Boundary())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := Options{UseTempFiles: true, TempFileDir: dir}
	form, err := NewSession(opts, nil).Consume(ctx, mr)

	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Consume() error = %v, want ErrAborted", err)
	}
	if form != nil {
		t.Error("form returned for aborted session")
	}
	assertDirEmpty(t, dir)
}

func TestSession_MalformedStream(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	mustWriteFile(t, w, "cut", "cut.bin", bytes.Repeat([]byte("y"), 4096))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()[:buf.Len()-2048]
	mr := multipart.NewReader(bytes.NewReader(raw), w.Boundary())

	form, err := NewSession(Options{}, nil).Consume(context.Background(), mr)

	if !errors.Is(err, ErrDecoding) {
		t.Fatalf("Consume() error = %v, want ErrDecoding", err)
	}
	if form != nil {
		t.Error("form returned for malformed stream")
	}
}

func TestSession_FieldSizeCap(t *testing.T) {
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteField(t, w, "note", "0123456789")
		mustWriteField(t, w, "after", "ok")
	})

	opts := Options{Limits: Limits{FieldSize: 5}}
	form, err := NewSession(opts, nil).Consume(context.Background(), mr)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if form.Fields["note"] != "01234" {
		t.Errorf("Fields[note] = %#v, want capped value", form.Fields["note"])
	}
	if form.Fields["after"] != "ok" {
		t.Error("field after the capped value was lost")
	}
}

func TestSession_StalledPartSkipped(t *testing.T) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		fw, _ := mw.CreateFormFile("slow", "slow.bin")
		fw.Write(bytes.Repeat([]byte("z"), 1024))
		time.Sleep(300 * time.Millisecond)
		fw.Write([]byte("late bytes"))
		mw.WriteField("after", "ok")
		mw.Close()
		pw.Close()
	}()

	opts := Options{UploadTimeout: 50 * time.Millisecond}
	form, err := NewSession(opts, nil).Consume(context.Background(), multipart.NewReader(pr, mw.Boundary()))
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if _, ok := form.Files["slow"]; ok {
		t.Error("stalled part produced an artifact")
	}
	if form.Fields["after"] != "ok" {
		t.Error("part after the stall was lost")
	}
}

func TestSession_FlushFailureReturnsPartialForm(t *testing.T) {
	dir := t.TempDir()
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteField(t, w, "name", "bo")
		mustWriteFile(t, w, "avatar", "a.png", []byte("image bytes"))
	})

	opts := Options{UseTempFiles: true, TempFileDir: dir}
	s := NewSession(opts, nil)

	// A flush handle that fails: the barrier must surface the error while
	// still handing back everything that was built.
	wantErr := errors.New("disk gone")
	s.flush.Go(func() error { return wantErr })

	form, err := s.Consume(context.Background(), mr)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Consume() error = %v, want the flush error", err)
	}
	if form == nil {
		t.Fatal("Consume() returned nil form alongside the flush error")
	}
	if form.Fields["name"] != "bo" {
		t.Errorf("Fields[name] = %#v, want \"bo\"", form.Fields["name"])
	}

	artifact, ok := form.Files["avatar"].(*FileArtifact)
	if !ok {
		t.Fatalf("Files[avatar] = %#v, want *FileArtifact", form.Files["avatar"])
	}

	// Completed temp files are kept on flush failure so callers can
	// inspect what did land.
	if _, statErr := os.Stat(artifact.TempPath); statErr != nil {
		t.Errorf("completed temp file missing after flush failure: %v", statErr)
	}
}

func TestSession_ConsumeTwice(t *testing.T) {
	mr := buildForm(t, func(w *multipart.Writer) {
		mustWriteField(t, w, "a", "1")
	})

	s := NewSession(Options{}, nil)
	if _, err := s.Consume(context.Background(), mr); err != nil {
		t.Fatalf("first Consume() error = %v", err)
	}
	if _, err := s.Consume(context.Background(), mr); err == nil {
		t.Error("second Consume() succeeded, want error")
	}
}

func TestSession_EmptyForm(t *testing.T) {
	mr := buildForm(t, func(w *multipart.Writer) {})

	form, err := NewSession(Options{}, nil).Consume(context.Background(), mr)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if len(form.Fields) != 0 || len(form.Files) != 0 {
		t.Errorf("empty body produced fields=%v files=%v", form.Fields, form.Files)
	}
}

// assertDirEmpty fails the test when dir still holds files.
func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory not empty: %v", names)
	}
}
