package fileid

import (
	"strings"
	"testing"
)

func TestSourceID(t *testing.T) {
	id1 := SourceID("/foo/bar.txt")
	if id1 != SourceID("/foo/bar.txt") {
		t.Error("same path should give same ID")
	}
	if !strings.HasPrefix(id1, Prefix) {
		t.Errorf("ID should have prefix %q: got %q", Prefix, id1)
	}
	if !IsFileSourceID(id1) {
		t.Errorf("IsFileSourceID(%q) = false", id1)
	}
	if id1 == SourceID("/foo/baz.txt") {
		t.Error("different paths should give different IDs")
	}
}

func TestSourceID_normalized(t *testing.T) {
	want := SourceID("/foo/bar")
	for _, p := range []string{"/foo/bar/", "/foo/./bar", "/foo/baz/../bar"} {
		if got := SourceID(p); got != want {
			t.Errorf("SourceID(%q) = %q, want %q", p, got, want)
		}
	}
}

func TestIsFileSourceID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{SourceID("/a"), true},
		{"doc1", false},
		{"file:not-a-uuid", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsFileSourceID(tt.id); got != tt.want {
			t.Errorf("IsFileSourceID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
