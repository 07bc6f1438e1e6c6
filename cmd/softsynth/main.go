package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/softsynth-go"
	"github.com/cbegin/softsynth-go/internal/bank"
	"github.com/cbegin/softsynth-go/internal/sequencer"
)

// demoKeys is played when no MIDI file is given.
var demoKeys = []uint8{64, 67, 71, 62, 65, 69}

type options struct {
	configPath string
	bankPath   string
	sink       string
	format     string
	sampleRate int
	polyphony  int
	renderPath string
	maxSeconds float64
	loop       bool
	loops      int
	transpose  int
	volume     float64
	set        map[string]bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML config file")
	flag.StringVar(&o.bankPath, "bank", "", "instrument bank: a YAML or JSON description or a .sf2 SoundFont; builtin bank when empty")
	flag.StringVar(&o.sink, "sink", softsynth.SinkEbiten, "output: ebiten|oto|stdout")
	flag.StringVar(&o.format, "format", "s16le", "stream encoding: s16le|f32le")
	flag.IntVar(&o.sampleRate, "sample-rate", 44100, "output sample rate")
	flag.IntVar(&o.polyphony, "polyphony", 64, "number of voices")
	flag.StringVar(&o.renderPath, "render", "", "render to this WAV file instead of playing")
	flag.Float64Var(&o.maxSeconds, "max-seconds", 600, "stop rendering after this many seconds")
	flag.BoolVar(&o.loop, "loop", false, "loop playback; use with -loops to count then stop")
	flag.IntVar(&o.loops, "loops", 3, "when -loop, stop after N loops (0 = loop forever)")
	flag.IntVar(&o.transpose, "transpose", 0, "transpose melodic channels by semitones")
	flag.Float64Var(&o.volume, "volume", 1.0, "master volume (0..1)")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [file.mid]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	o.set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, o, flag.Arg(0)); err != nil {
		logger.Error("softsynth failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, o options, midiPath string) error {
	synth, err := newSynth(logger, o)
	if err != nil {
		return err
	}
	b := bank.Default()
	if strings.TrimSpace(o.bankPath) != "" {
		if b, err = bank.Load(o.bankPath); err != nil {
			return err
		}
	}
	if err := synth.LoadBank(b); err != nil {
		return err
	}

	sr := synth.Config().SampleRate
	song := demoSong(sr)
	if midiPath != "" {
		if song, err = sequencer.ReadFile(midiPath, sr); err != nil {
			return err
		}
	}
	synth.SetMasterVolume(o.volume)

	if o.renderPath != "" {
		return render(logger, synth, song, o)
	}
	return play(logger, synth, song, o)
}

func newSynth(logger *slog.Logger, o options) (*softsynth.Synthesizer, error) {
	cfg := softsynth.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = softsynth.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	opts := []softsynth.Option{softsynth.WithConfig(cfg), softsynth.WithLogger(logger)}
	if o.set["sample-rate"] {
		opts = append(opts, softsynth.WithSampleRate(o.sampleRate))
	}
	if o.set["polyphony"] {
		opts = append(opts, softsynth.WithPolyphony(o.polyphony))
	}
	if o.set["format"] {
		opts = append(opts, softsynth.WithFormat(o.format))
	}
	switch {
	case o.renderPath != "":
		opts = append(opts, softsynth.WithSink(softsynth.SinkNone))
	case o.sink == "stdout":
		opts = append(opts, softsynth.WithWriter(os.Stdout))
	case o.set["sink"]:
		opts = append(opts, softsynth.WithSink(o.sink))
	}
	return softsynth.New(opts...)
}

func render(logger *slog.Logger, synth *softsynth.Synthesizer, song *sequencer.Song, o options) error {
	frames, err := synth.Render(song, o.maxSeconds)
	if err != nil {
		return err
	}
	f, err := os.Create(o.renderPath)
	if err != nil {
		return err
	}
	if err := synth.WriteWAV(f, frames); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("rendered",
		"file", o.renderPath,
		"seconds", float64(len(frames)/2)/float64(synth.Config().SampleRate))
	return nil
}

func play(logger *slog.Logger, synth *softsynth.Synthesizer, song *sequencer.Song, o options) error {
	if err := synth.Open(); err != nil {
		return err
	}
	defer synth.Close()

	events := make(chan sequencer.EventKind, 8)
	seq, err := synth.Play(song, sequencer.Options{
		Loop:      o.loop,
		Transpose: o.transpose,
		OnEvent: func(k sequencer.EventKind) {
			select {
			case events <- k:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	logger.Info("playing", "duration", song.Duration(), "events", len(song.Events))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	loopCount := 0
	for {
		select {
		case k := <-events:
			switch k {
			case sequencer.EventPlaybackEnded:
				logger.Info("playback completed")
				return nil
			case sequencer.EventLoopCompleted:
				loopCount++
				logger.Info("loop completed", "loop", loopCount)
				if o.loops > 0 && loopCount >= o.loops {
					seq.Stop()
					return nil
				}
			}
		case <-synth.Failed():
			seq.Stop()
			return synth.Err()
		case <-interrupt:
			logger.Info("interrupted", "position", seq.Position())
			seq.Stop()
			return nil
		}
	}
}

func demoSong(sampleRate int) *sequencer.Song {
	step := int64(sampleRate / 4)
	song := &sequencer.Song{SampleRate: sampleRate, Frames: step * int64(len(demoKeys)+1)}
	for i, key := range demoKeys {
		at := int64(i) * step
		song.Events = append(song.Events,
			sequencer.Event{Frame: at, Message: midi.NoteOn(0, key, 100)},
			sequencer.Event{Frame: at + step, Message: midi.NoteOff(0, key)},
		)
	}
	return song
}
