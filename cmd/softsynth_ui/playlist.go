package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var errEmptyPlaylist = errors.New("no MIDI files")

// playlist is the ordered set of songs the player steps through. Directory
// arguments contribute the MIDI files directly inside them.
type playlist struct {
	files []string
	cur   int
}

func newPlaylist(args []string) (*playlist, error) {
	p := &playlist{}
	seen := map[string]bool{}
	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", path, err)
		}
		if !seen[abs] {
			seen[abs] = true
			p.files = append(p.files, abs)
		}
		return nil
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("playlist: %w", err)
		}
		if !info.IsDir() {
			if err := add(arg); err != nil {
				return nil, err
			}
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("playlist: %w", err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && isMIDIFile(e.Name()) {
				names = append(names, e.Name())
			}
		}
		slices.SortFunc(names, func(a, b string) int {
			return strings.Compare(strings.ToLower(a), strings.ToLower(b))
		})
		for _, name := range names {
			if err := add(filepath.Join(arg, name)); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func isMIDIFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mid", ".midi", ".smf", ".kar":
		return true
	}
	return false
}

func (p *playlist) Len() int { return len(p.files) }

// Current returns the selected file.
func (p *playlist) Current() (string, error) {
	if len(p.files) == 0 {
		return "", errEmptyPlaylist
	}
	return p.files[p.cur], nil
}

// Step moves the selection by delta, wrapping at either end.
func (p *playlist) Step(delta int) (string, error) {
	if len(p.files) == 0 {
		return "", errEmptyPlaylist
	}
	p.cur = ((p.cur+delta)%len(p.files) + len(p.files)) % len(p.files)
	return p.files[p.cur], nil
}

// Select moves to entry i; out-of-range indexes leave the selection alone.
func (p *playlist) Select(i int) bool {
	if i < 0 || i >= len(p.files) {
		return false
	}
	p.cur = i
	return true
}

// AtEnd reports whether the last entry is selected.
func (p *playlist) AtEnd() bool { return p.cur == len(p.files)-1 }
