package model

// Director selects which performers of an instrument respond to a note.
// It holds no per-note state.
type Director struct {
	performers []*Performer
}

func NewDirector(ins *Instrument) Director {
	return Director{performers: ins.Performers}
}

// Match appends to dst the indices, in declaration order, of the performers whose
// ranges contain key and velocity and whose release-trigger flag equals release.
func (d Director) Match(key, velocity int, release bool, dst []int) []int {
	for i, p := range d.performers {
		if p.ReleaseTriggered != release {
			continue
		}
		if p.Matches(key, velocity) {
			dst = append(dst, i)
		}
	}
	return dst
}
