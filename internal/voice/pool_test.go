package voice

import "testing"

func TestFindFreePrefersFreeSlots(t *testing.T) {
	pool := NewPool(4, AllocDefault, testRate, testControl)
	p, c := testPerformer(), testControls()
	pool.Play(0, testNote(p, c, pool.NextID(), 0, 60))
	pool.Play(2, testNote(p, c, pool.NextID(), 0, 62))
	if ix := pool.FindFree(0, 0); ix != 1 {
		t.Fatalf("FindFree(0) = %d, want 1", ix)
	}
	if ix := pool.FindFree(2, 0); ix != 3 {
		t.Fatalf("FindFree(2) = %d, want 3", ix)
	}
	if pool.Active() != 2 {
		t.Fatalf("active = %d", pool.Active())
	}
}

func TestDefaultStealOrder(t *testing.T) {
	tests := []struct {
		name     string
		released []int
		want     int
	}{
		{"oldest when all held", nil, 0},
		{"released before held", []int{2}, 2},
		{"oldest released", []int{1, 2}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pool := NewPool(3, AllocDefault, testRate, testControl)
			p, c := testPerformer(), testControls()
			for i := 0; i < 3; i++ {
				pool.Play(i, testNote(p, c, pool.NextID(), 0, 60+i))
			}
			for _, ix := range tc.released {
				pool.Voices()[ix].NoteOff(false)
			}
			if ix := pool.FindFree(0, 0); ix != tc.want {
				t.Fatalf("stole %d, want %d", ix, tc.want)
			}
		})
	}
}

func TestDLSStealOrder(t *testing.T) {
	tests := []struct {
		name     string
		channels []int
		request  int
		want     int
	}{
		{"highest channel above request", []int{0, 5, 3}, 2, 1},
		{"own channel", []int{1, 2, 9}, 2, 1},
		{"percussion request", []int{9, 4, 9}, 9, 1},
		{"never percussion from melodic", []int{9, 9, 1}, 1, 2},
		{"fallback to oldest", []int{0, 1, 9}, 7, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pool := NewPool(len(tc.channels), AllocDLS, testRate, testControl)
			p, c := testPerformer(), testControls()
			for i, ch := range tc.channels {
				pool.Play(i, testNote(p, c, pool.NextID(), ch, 60))
			}
			if ix := pool.FindFree(0, tc.request); ix != tc.want {
				t.Fatalf("stole %d, want %d", ix, tc.want)
			}
		})
	}
}

func TestStolenVoiceStartsQueuedNote(t *testing.T) {
	pool := NewPool(2, AllocDefault, testRate, testControl)
	p, c := testPerformer(), testControls()
	b := testBuffers(testRate / testControl)
	pool.Play(0, testNote(p, c, pool.NextID(), 0, 60))
	pool.Play(1, testNote(p, c, pool.NextID(), 0, 62))
	pool.Tick()
	pool.Render(b)

	ix := pool.FindFree(0, 0)
	if ix != 0 {
		t.Fatalf("stole %d, want 0", ix)
	}
	id := pool.NextID()
	pool.Play(ix, testNote(p, c, id, 0, 64))
	v := &pool.Voices()[0]
	if v.State != StateStealing {
		t.Fatalf("state = %v, want stealing", v.State)
	}
	if n, ok := v.Pending(); !ok || n.Key != 64 {
		t.Fatal("replacement note should be queued")
	}
	if ix := pool.FindFree(0, 0); ix != 1 {
		t.Fatalf("a voice with a queued note must not be stolen again, got %d", ix)
	}

	for i := 0; i < 4 && v.ID != id; i++ {
		b.clear()
		pool.Tick()
		pool.Render(b)
	}
	if v.ID != id || v.Key != 64 || v.State != StateActive {
		t.Fatalf("queued note did not start: id=%d key=%d state=%v", v.ID, v.Key, v.State)
	}
}

func TestCancelPendingDropsQueuedNote(t *testing.T) {
	pool := NewPool(1, AllocDefault, testRate, testControl)
	p, c := testPerformer(), testControls()
	b := testBuffers(testRate / testControl)
	pool.Play(0, testNote(p, c, pool.NextID(), 3, 60))
	pool.Play(0, testNote(p, c, pool.NextID(), 3, 64))
	pool.CancelPending(3, 64)
	if _, ok := pool.Voices()[0].Pending(); ok {
		t.Fatal("pending note should be cancelled")
	}
	for i := 0; i < 4; i++ {
		pool.Tick()
		pool.Render(b)
	}
	if pool.Active() != 0 {
		t.Fatal("slot should end up free")
	}
}

func TestSoundOffAppliesToWholeNote(t *testing.T) {
	pool := NewPool(3, AllocDefault, testRate, testControl)
	p, c := testPerformer(), testControls()
	shared := pool.NextID()
	pool.Play(0, testNote(p, c, shared, 0, 60))
	pool.Play(1, testNote(p, c, shared, 0, 60))
	pool.Play(2, testNote(p, c, pool.NextID(), 0, 67))
	pool.Play(0, testNote(p, c, pool.NextID(), 0, 72))
	vs := pool.Voices()
	if vs[0].On || vs[1].On {
		t.Fatal("both performers of the stolen note should be silenced")
	}
	if !vs[2].On {
		t.Fatal("unrelated note must keep sounding")
	}
}

func TestClearFreesEverySlot(t *testing.T) {
	pool := NewPool(2, AllocDefault, testRate, testControl)
	p, c := testPerformer(), testControls()
	pool.Play(0, testNote(p, c, pool.NextID(), 0, 60))
	pool.Play(1, testNote(p, c, pool.NextID(), 0, 62))
	pool.Play(0, testNote(p, c, pool.NextID(), 0, 64))
	pool.Clear()
	if pool.Active() != 0 {
		t.Fatalf("active after clear = %d", pool.Active())
	}
	if _, ok := pool.Voices()[0].Pending(); ok {
		t.Fatal("queued note should be dropped")
	}
	b := testBuffers(testRate / testControl)
	pool.Tick()
	pool.Render(b)
	if pool.Active() != 0 {
		t.Fatal("cleared slots must stay free")
	}
	for i, s := range b.Mono {
		if s != 0 || b.Left[i] != 0 {
			t.Fatal("cleared pool rendered audio")
		}
	}
}

func TestActiveByChannel(t *testing.T) {
	pool := NewPool(4, AllocDefault, testRate, testControl)
	p, c := testPerformer(), testControls()
	pool.Play(0, testNote(p, c, pool.NextID(), 0, 60))
	pool.Play(1, testNote(p, c, pool.NextID(), 0, 64))
	pool.Play(2, testNote(p, c, pool.NextID(), 9, 36))
	got := []int{7, 7, 7}
	pool.ActiveByChannel(got)
	if got[0] != 2 || got[1] != 0 || got[2] != 0 {
		t.Fatalf("counts = %v", got)
	}
	all := make([]int, 16)
	pool.ActiveByChannel(all)
	if all[9] != 1 {
		t.Fatalf("channel 10 count = %d", all[9])
	}
}
