package core

import "testing"

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"unix path stripped", "/etc/passwd", "passwd"},
		{"relative path stripped", "../../secret.txt", "secret.txt"},
		{"windows path stripped", `C:\Users\bo\photo.jpg`, "photo.jpg"},
		{"mixed separators", `uploads/..\trick.png`, "trick.png"},
		{"empty", "", "unnamed"},
		{"dot", ".", "unnamed"},
		{"dotdot", "..", "unnamed"},
		{"path to empty", "dir/", "unnamed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeFileName(tt.in); got != tt.want {
				t.Errorf("sanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileName_Caps(t *testing.T) {
	long := make([]byte, maxFileNameLen+50)
	for i := range long {
		long[i] = 'a'
	}

	got := sanitizeFileName(string(long))
	if len(got) != maxFileNameLen {
		t.Errorf("len = %d, want %d", len(got), maxFileNameLen)
	}
}

func TestPartTransitions(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		p := &filePart{state: partNew}
		if !p.transition(partStreaming) {
			t.Fatal("new -> streaming refused")
		}
		if !p.transition(partComplete) {
			t.Fatal("streaming -> complete refused")
		}
	})

	t.Run("terminal states are final", func(t *testing.T) {
		for _, terminal := range []partState{partComplete, partLimitHit, partAborted, partErrored} {
			p := &filePart{state: terminal}
			if p.transition(partStreaming) {
				t.Errorf("%v -> streaming allowed", terminal)
			}
			if p.transition(partComplete) {
				t.Errorf("%v -> complete allowed", terminal)
			}
		}
	})

	t.Run("new can fail directly", func(t *testing.T) {
		p := &filePart{state: partNew}
		if !p.transition(partErrored) {
			t.Error("new -> errored refused")
		}
	})
}
