package main

import (
	"image"
	"testing"
)

func TestComputeLayoutFits(t *testing.T) {
	for _, size := range []image.Point{{minWindowW, minWindowH}, {windowW, windowH}, {1920, 1080}} {
		t.Run(size.String(), func(t *testing.T) {
			screen := image.Rect(0, 0, size.X, size.Y)
			l := computeLayout(size.X, size.Y)
			named := map[string]image.Rectangle{
				"songs": l.songs, "eq": l.eq, "strips": l.strips, "scope": l.scope,
				"levels": l.levels, "progress": l.progress, "status": l.status,
				"prev": l.prev, "play": l.play, "next": l.next, "program": l.program,
				"transpose": l.transpose, "volume": l.volume, "reverb": l.reverb, "chorus": l.chorus,
			}
			for name, r := range named {
				if r.Empty() || !r.In(screen) {
					t.Fatalf("%s = %v outside %v", name, r, screen)
				}
				for other, o := range named {
					if other != name && r.Overlaps(o) {
						t.Fatalf("%s %v overlaps %s %v", name, r, other, o)
					}
				}
			}
			if len(l.stripCols) != 16 || len(l.eqCols) != 5 {
				t.Fatalf("%d strips, %d eq bands", len(l.stripCols), len(l.eqCols))
			}
			for i, c := range l.stripCols {
				if c.Empty() || !c.In(l.strips) {
					t.Fatalf("strip %d = %v", i, c)
				}
			}
		})
	}
}

func TestHitStrip(t *testing.T) {
	cols := columns(image.Rect(0, 0, 160, 200), 2, 0)
	p := stripGeometry(cols[1])
	tests := []struct {
		name   string
		pt     image.Point
		strip  int
		target stripTarget
	}{
		{"meter", p.meter.Min, 1, stripSelect},
		{"header", p.header.Min, 1, stripSelect},
		{"mute", p.mute.Min, 1, stripMute},
		{"solo", p.solo.Min, 1, stripSolo},
		{"first strip", image.Pt(10, 10), 0, stripSelect},
		{"outside", image.Pt(400, 10), -1, stripNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strip, target := hitStrip(cols, tt.pt.X, tt.pt.Y)
			if strip != tt.strip || target != tt.target {
				t.Fatalf("hit %v = %d/%d, want %d/%d", tt.pt, strip, target, tt.strip, tt.target)
			}
		})
	}
	if p.mute.Overlaps(p.solo) || p.meter.Overlaps(p.header) {
		t.Fatal("strip parts overlap")
	}
}

func TestEQBandLabel(t *testing.T) {
	want := []string{"<200", "400", "1.4k", "4.5k", ">8k"}
	for band, w := range want {
		if got := eqBandLabel(band); got != w {
			t.Fatalf("band %d = %q, want %q", band, got, w)
		}
	}
	if got := formatHz(8000); got != "8k" {
		t.Fatalf("formatHz(8000) = %q", got)
	}
}
