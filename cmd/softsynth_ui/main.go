// Command softsynth_ui is a desktop console for the synthesizer: a playlist
// of MIDI files, sixteen channel strips and the master section.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cbegin/softsynth-go"
	"github.com/cbegin/softsynth-go/internal/bank"
	"github.com/cbegin/softsynth-go/internal/channel"
	"github.com/cbegin/softsynth-go/internal/effects"
	"github.com/cbegin/softsynth-go/internal/model"
	"github.com/cbegin/softsynth-go/internal/sequencer"
)

const (
	windowW      = 1100
	windowH      = 720
	minWindowW   = 980
	minWindowH   = 680
	uiSampleRate = 48000
	scopeLen     = 1024

	transposeRange = 12
	eqMinDB        = -18.0
	eqMaxDB        = 6.0
	keyboardBase   = 60
)

// pianoKeys maps two rows of the keyboard onto an octave and a note.
var pianoKeys = []struct {
	key    ebiten.Key
	offset int
}{
	{ebiten.KeyA, 0}, {ebiten.KeyW, 1}, {ebiten.KeyS, 2}, {ebiten.KeyE, 3},
	{ebiten.KeyD, 4}, {ebiten.KeyF, 5}, {ebiten.KeyT, 6}, {ebiten.KeyG, 7},
	{ebiten.KeyY, 8}, {ebiten.KeyH, 9}, {ebiten.KeyU, 10}, {ebiten.KeyJ, 11},
	{ebiten.KeyK, 12},
}

// dragTarget is the control following the mouse while the button is down.
type dragTarget int

const (
	dragNone dragTarget = iota
	dragVolume
	dragTranspose
	dragEQ
)

type console struct {
	synth  *softsynth.Synthesizer
	log    *slog.Logger
	meter  *meter
	events chan sequencer.EventKind
	text   textCache

	list       *playlist
	listScroll int
	song       *sequencer.Song
	seq        *sequencer.Sequencer

	keyChannel int
	held       map[ebiten.Key]int
	transpose  int
	volume     float64
	eqDB       [effects.EQBands]float64
	reverb     bool
	chorus     bool

	drag   dragTarget
	dragEQ int

	left, right ballistics
	rms         [2]float64
	voiceBars   [16]float64
	scope       []float32

	status    string
	statusErr bool
	w, h      int
}

func newConsole(logger *slog.Logger, b *bank.Bank, list *playlist) (*console, error) {
	m := newMeter(scopeLen * 4)
	synth, err := softsynth.New(
		softsynth.WithSampleRate(uiSampleRate),
		softsynth.WithLogger(logger),
		softsynth.WithSink(softsynth.SinkEbiten),
		softsynth.WithFormat("f32le"),
		softsynth.WithSampleTap(m.Tap),
	)
	if err != nil {
		return nil, err
	}
	if err := synth.LoadBank(b); err != nil {
		return nil, err
	}
	if err := synth.Open(); err != nil {
		return nil, err
	}
	c := &console{
		synth:  synth,
		log:    logger,
		meter:  m,
		events: make(chan sequencer.EventKind, 8),
		text:   textCache{},
		list:   list,
		held:   make(map[ebiten.Key]int),
		volume: synth.MasterVolume(),
		reverb: synth.Config().Reverb,
		chorus: synth.Config().Chorus,
		left:   newBallistics(),
		right:  newBallistics(),
		rms:    [2]float64{floorDB, floorDB},
		scope:  make([]float32, scopeLen),
		w:      windowW,
		h:      windowH,
	}
	c.setStatus(fmt.Sprintf("%d instruments from %s", len(synth.Instruments()), b.Name))
	if list.Len() > 0 {
		path, _ := list.Current()
		if err := c.load(path); err != nil {
			c.setError(err)
		}
	}
	return c, nil
}

func (c *console) Update() error {
	select {
	case <-c.synth.Failed():
		return c.synth.Err()
	default:
	}
	c.pollEvents()
	c.handleKeys()
	c.handleMouse(computeLayout(c.w, c.h))

	lv := c.meter.Read()
	c.left.update(toDB(lv.peak[0]))
	c.right.update(toDB(lv.peak[1]))
	for i, v := range lv.rms {
		c.rms[i] = max(toDB(v), c.rms[i]-meterFall)
	}
	for ch, n := range c.synth.ChannelVoices() {
		c.voiceBars[ch] = max(float64(n), c.voiceBars[ch]*0.85)
	}
	return nil
}

func (c *console) Layout(outsideW, outsideH int) (int, int) {
	c.w, c.h = max(outsideW, minWindowW), max(outsideH, minWindowH)
	return c.w, c.h
}

func (c *console) Close() {
	if err := c.synth.Close(); err != nil {
		c.log.Warn("close synthesizer", "err", err)
	}
}

func (c *console) pollEvents() {
	for {
		select {
		case ev := <-c.events:
			if ev != sequencer.EventPlaybackEnded {
				continue
			}
			c.seq = nil
			if c.list.Len() > 1 && !c.list.AtEnd() {
				c.step(1, true)
			} else {
				c.setStatus("Playback ended")
			}
		default:
			return
		}
	}
}

// handleKeys plays the selected channel from the computer keyboard. A held
// key remembers its note so changing octave mid-note still releases it.
func (c *console) handleKeys() {
	for _, pk := range pianoKeys {
		if inpututil.IsKeyJustPressed(pk.key) {
			key := keyboardBase + pk.offset + c.transpose
			if key >= 0 && key <= 127 {
				c.held[pk.key] = key
				c.send(0x90|byte(c.keyChannel), byte(key), 100)
			}
		}
		if inpututil.IsKeyJustReleased(pk.key) {
			if key, ok := c.held[pk.key]; ok {
				delete(c.held, pk.key)
				c.send(0x80|byte(c.keyChannel), byte(key), 0)
			}
		}
	}
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyZ):
		c.setTranspose(c.transpose - 12)
	case inpututil.IsKeyJustPressed(ebiten.KeyX):
		c.setTranspose(c.transpose + 12)
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		c.togglePlay()
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		c.allSoundOff()
	case inpututil.IsKeyJustPressed(ebiten.KeyPageUp):
		c.step(-1, c.seq != nil)
	case inpututil.IsKeyJustPressed(ebiten.KeyPageDown):
		c.step(1, c.seq != nil)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowUp):
		c.selectChannel(c.keyChannel - 1)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowDown):
		c.selectChannel(c.keyChannel + 1)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowRight):
		c.cycleProgram(1)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft):
		c.cycleProgram(-1)
	}
}

func (c *console) handleMouse(l screenLayout) {
	mx, my := ebiten.CursorPosition()
	pt := image.Pt(mx, my)

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonRight) && pt.In(l.program) {
		c.cycleProgram(-1)
	}
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		switch {
		case pt.In(l.play):
			c.togglePlay()
		case pt.In(l.prev):
			c.step(-1, true)
		case pt.In(l.next):
			c.step(1, true)
		case pt.In(l.program):
			c.cycleProgram(1)
		case pt.In(l.reverb):
			c.reverb = !c.reverb
			c.synth.SetReverb(c.reverb)
		case pt.In(l.chorus):
			c.chorus = !c.chorus
			c.synth.SetChorus(c.chorus)
		case pt.In(l.volume):
			c.drag = dragVolume
		case pt.In(l.transpose):
			c.drag = dragTranspose
		case pt.In(l.songs):
			c.clickSong(l.songs, my)
		case pt.In(l.strips):
			c.clickStrip(l.stripCols, mx, my)
		default:
			for band, col := range l.eqCols {
				if pt.In(col) {
					c.drag, c.dragEQ = dragEQ, band
				}
			}
		}
	}
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		c.drag = dragNone
	}
	switch c.drag {
	case dragVolume:
		v := frac(sliderTrack(l.volume), mx)
		c.volume = v
		c.synth.SetMasterVolume(v)
	case dragTranspose:
		f := frac(sliderTrack(l.transpose), mx)
		c.setTranspose(int(math.Round(f*2*transposeRange)) - transposeRange)
	case dragEQ:
		col := eqTrack(l.eqCols[c.dragEQ])
		f := 1 - min(max(float64(my-col.Min.Y)/float64(max(col.Dy(), 1)), 0), 1)
		c.setEQ(c.dragEQ, eqMinDB+f*(eqMaxDB-eqMinDB))
	}

	if _, wy := ebiten.Wheel(); wy != 0 && pt.In(l.songs) {
		c.listScroll = min(max(c.listScroll-int(wy*2), 0), max(c.list.Len()-1, 0))
	}
}

func (c *console) clickSong(r image.Rectangle, y int) {
	row := (y - songListTop(r)) / glyphH
	if row < 0 || !c.list.Select(c.listScroll+row) {
		return
	}
	path, _ := c.list.Current()
	if err := c.load(path); err != nil {
		c.setError(err)
		return
	}
	c.play()
}

func (c *console) clickStrip(cols []image.Rectangle, x, y int) {
	i, target := hitStrip(cols, x, y)
	if i < 0 {
		return
	}
	ch := c.synth.Channel(i)
	switch target {
	case stripMute:
		ch.SetMute(!ch.Mute())
	case stripSolo:
		ch.SetSolo(!ch.Solo())
	case stripSelect:
		c.selectChannel(i)
	}
}

func (c *console) send(msg ...byte) {
	if err := c.synth.Send(msg); err != nil {
		c.setError(err)
	}
}

// allSoundOff releases held keys and silences every channel at once.
func (c *console) allSoundOff() {
	for ch := range c.synth.Channels() {
		c.send(0xB0|byte(ch), 120, 0)
	}
	clear(c.held)
	c.setStatus("All sound off")
}

// selectChannel moves the computer keyboard to channel i, releasing notes
// still held on the old one.
func (c *console) selectChannel(i int) {
	i = (i + 16) % 16
	if i == c.keyChannel {
		return
	}
	for k, key := range c.held {
		c.send(0x80|byte(c.keyChannel), byte(key), 0)
		delete(c.held, k)
	}
	c.keyChannel = i
	c.setStatus(fmt.Sprintf("Keyboard plays channel %d", i+1))
}

// programsFor lists what channel i can select: kits on the percussion
// channel, melodic instruments elsewhere.
func (c *console) programsFor(i int) []*model.Instrument {
	perc := i == channel.PercussionChannel
	var list []*model.Instrument
	for _, ins := range c.synth.Instruments() {
		if ins.Percussion == perc {
			list = append(list, ins)
		}
	}
	slices.SortFunc(list, func(a, b *model.Instrument) int {
		if a.Bank != b.Bank {
			return a.Bank - b.Bank
		}
		return a.Program - b.Program
	})
	return list
}

func (c *console) cycleProgram(delta int) {
	list := c.programsFor(c.keyChannel)
	if len(list) == 0 {
		c.setError(errors.New("no instruments for this channel"))
		return
	}
	ch := c.synth.Channel(c.keyChannel)
	ix := slices.IndexFunc(list, func(ins *model.Instrument) bool {
		return ins.Bank == ch.Bank() && ins.Program == ch.Program()
	})
	if ix < 0 && delta < 0 {
		ix = 0
	}
	ix = ((ix+delta)%len(list) + len(list)) % len(list)
	ins := list[ix]
	ch.ProgramChangeBank(ins.Bank, ins.Program)
	c.setStatus(fmt.Sprintf("Channel %d: %s (bank %d, program %d)", c.keyChannel+1, ins.Name, ins.Bank, ins.Program))
}

// setTranspose shifts the keyboard at once and the song from its next
// start; notes already scheduled keep their pitch.
func (c *console) setTranspose(semitones int) {
	semitones = min(max(semitones, -transposeRange), transposeRange)
	if semitones == c.transpose {
		return
	}
	c.transpose = semitones
	if c.seq != nil {
		c.play()
	}
	c.setStatus(fmt.Sprintf("Transpose %+d", semitones))
}

func (c *console) setEQ(band int, db float64) {
	db = min(max(db, eqMinDB), eqMaxDB)
	c.eqDB[band] = db
	c.synth.SetEQBand(band, float32(math.Pow(10, db/20)))
}

func (c *console) load(path string) error {
	song, err := sequencer.ReadFile(path, uiSampleRate)
	if err != nil {
		return err
	}
	c.synth.StopSong()
	c.seq = nil
	c.song = song
	c.setStatus(fmt.Sprintf("Loaded %s (%.1fs)", filepath.Base(path), song.Duration().Seconds()))
	return nil
}

// step moves through the playlist, starting the new song when autoplay is set.
func (c *console) step(delta int, autoplay bool) {
	path, err := c.list.Step(delta)
	if err != nil {
		c.setError(err)
		return
	}
	if err := c.load(path); err != nil {
		c.setError(err)
		return
	}
	if autoplay {
		c.play()
	}
}

func (c *console) togglePlay() {
	if c.seq != nil {
		c.synth.StopSong()
		c.seq = nil
		c.setStatus("Stopped")
		return
	}
	c.play()
}

func (c *console) play() {
	if c.song == nil {
		c.setError(errEmptyPlaylist)
		return
	}
	seq, err := c.synth.Play(c.song, sequencer.Options{
		Transpose: c.transpose,
		OnEvent: func(kind sequencer.EventKind) {
			select {
			case c.events <- kind:
			default:
			}
		},
	})
	if err != nil {
		c.seq = nil
		c.setError(err)
		return
	}
	c.seq = seq
	path, _ := c.list.Current()
	c.setStatus("Playing " + filepath.Base(path))
}

func (c *console) setError(err error) {
	c.status, c.statusErr = err.Error(), true
	c.log.Debug("console error", "err", err)
}

func (c *console) setStatus(msg string) {
	c.status, c.statusErr = msg, false
}

func main() {
	bankPath := flag.String("bank", "", "instrument bank: a YAML or JSON description or a .sf2 SoundFont; builtin bank when empty")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [file.mid|dir ...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *bankPath, flag.Args()); err != nil {
		logger.Error("softsynth_ui failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, bankPath string, args []string) error {
	b := bank.Default()
	if bankPath != "" {
		var err error
		if b, err = bank.Load(bankPath); err != nil {
			return err
		}
	}
	list, err := newPlaylist(args)
	if err != nil {
		return err
	}
	c, err := newConsole(logger, b, list)
	if err != nil {
		return err
	}
	defer c.Close()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("softsynth")
	return ebiten.RunGame(c)
}
