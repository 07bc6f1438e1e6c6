package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewPlaylist(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.MID", "a.mid", "notes.txt", "c.kar"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.mid"), 0o755); err != nil {
		t.Fatal(err)
	}

	p, err := newPlaylist([]string{filepath.Join(dir, "c.kar"), dir})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, f := range p.files {
		got = append(got, filepath.Base(f))
	}
	want := []string{"c.kar", "a.mid", "b.MID"}
	if len(got) != len(want) {
		t.Fatalf("files = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("files = %v, want %v", got, want)
		}
	}
	for _, f := range p.files {
		if !filepath.IsAbs(f) {
			t.Fatalf("%q is not absolute", f)
		}
	}

	if _, err := newPlaylist([]string{filepath.Join(dir, "missing.mid")}); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestPlaylistStep(t *testing.T) {
	p := &playlist{files: []string{"a", "b", "c"}}
	tests := []struct {
		name  string
		delta int
		want  string
		atEnd bool
	}{
		{"forward", 1, "b", false},
		{"forward again", 1, "c", true},
		{"wrap forward", 1, "a", false},
		{"wrap back", -1, "c", true},
		{"long jump", -4, "b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Step(tt.delta)
			if err != nil || got != tt.want {
				t.Fatalf("Step(%d) = %q, %v", tt.delta, got, err)
			}
			if p.AtEnd() != tt.atEnd {
				t.Fatalf("AtEnd = %v", p.AtEnd())
			}
		})
	}
	if p.Select(3) || !p.Select(0) {
		t.Fatal("Select bounds")
	}

	empty := &playlist{}
	if _, err := empty.Step(1); !errors.Is(err, errEmptyPlaylist) {
		t.Fatalf("empty step err = %v", err)
	}
	if _, err := empty.Current(); !errors.Is(err, errEmptyPlaylist) {
		t.Fatalf("empty current err = %v", err)
	}
}
