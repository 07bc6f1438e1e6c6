package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Sink consumes a StreamReader until closed.
type Sink interface {
	Start() error
	Close() error
}

var ErrSinkClosed = errors.New("sink closed")

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// EbitenSink plays through the process-wide ebiten audio context.
type EbitenSink struct {
	player *ebitaudio.Player
	reader *StreamReader
}

func NewEbitenSink(sampleRate int, reader *StreamReader) (*EbitenSink, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	var pl *ebitaudio.Player
	if reader.Format() == FormatPCM16 {
		pl, err = ctx.NewPlayer(reader)
	} else {
		pl, err = ctx.NewPlayerF32(reader)
	}
	if err != nil {
		return nil, fmt.Errorf("ebiten player: %w", err)
	}
	return &EbitenSink{player: pl, reader: reader}, nil
}

func (s *EbitenSink) Start() error {
	s.player.Play()
	return nil
}

func (s *EbitenSink) Close() error {
	s.player.Pause()
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("ebiten player: %w", err)
	}
	return s.reader.Close()
}

var (
	otoOnce       sync.Once
	otoContext    *oto.Context
	otoErr        error
	otoSampleRate int
	otoFormat     Format
)

func sharedOtoContext(sampleRate int, format Format) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoSampleRate, otoFormat = sampleRate, format
		f := oto.FormatFloat32LE
		if format == FormatPCM16 {
			f = oto.FormatSignedInt16LE
		}
		var ready chan struct{}
		otoContext, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       f,
		})
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("oto context: %w", otoErr)
	}
	if otoSampleRate != sampleRate || otoFormat != format {
		return nil, fmt.Errorf("oto context already initialized at %d Hz %s", otoSampleRate, otoFormat)
	}
	return otoContext, nil
}

// OtoSink plays through an oto context directly, without ebiten.
type OtoSink struct {
	player *oto.Player
	reader *StreamReader
}

func NewOtoSink(sampleRate int, reader *StreamReader) (*OtoSink, error) {
	ctx, err := sharedOtoContext(sampleRate, reader.Format())
	if err != nil {
		return nil, err
	}
	return &OtoSink{player: ctx.NewPlayer(reader), reader: reader}, nil
}

func (s *OtoSink) Start() error {
	s.player.Play()
	return s.player.Err()
}

func (s *OtoSink) Close() error {
	s.player.Pause()
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("oto player: %w", err)
	}
	return s.reader.Close()
}

// WriterSink pushes the stream into an io.Writer from its own goroutine.
// With a positive sample rate it paces itself to real time; otherwise it
// writes as fast as the writer accepts.
type WriterSink struct {
	w          io.Writer
	reader     *StreamReader
	chunk      []byte
	sampleRate int
	log        *slog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	err     error
	written int64
	onFail  func(error)
}

// NewWriterSink writes chunkFrames frames per write.
func NewWriterSink(w io.Writer, reader *StreamReader, chunkFrames, sampleRate int, logger *slog.Logger) *WriterSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriterSink{
		w:          w,
		reader:     reader,
		chunk:      make([]byte, max(chunkFrames, 1)*reader.Format().FrameBytes()),
		sampleRate: sampleRate,
		log:        logger,
	}
}

func (s *WriterSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	return nil
}

func (s *WriterSink) run(stop, done chan struct{}) {
	defer close(done)
	var tick <-chan time.Time
	if s.sampleRate > 0 {
		frames := len(s.chunk) / s.reader.Format().FrameBytes()
		t := time.NewTicker(time.Duration(frames) * time.Second / time.Duration(s.sampleRate))
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := s.reader.Read(s.chunk)
		if n > 0 {
			if _, werr := s.w.Write(s.chunk[:n]); werr != nil {
				s.fail(fmt.Errorf("sink write: %w", werr))
				return
			}
			s.mu.Lock()
			s.written += int64(n)
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.fail(err)
			}
			return
		}
		if tick != nil {
			select {
			case <-stop:
				return
			case <-tick:
			}
		}
	}
}

func (s *WriterSink) fail(err error) {
	s.log.Error("audio sink stopped", "err", err)
	s.mu.Lock()
	s.err = err
	fn := s.onFail
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// OnFail registers fn to run on the push goroutine when a write or read error
// stops the sink.
func (s *WriterSink) OnFail(fn func(error)) {
	s.mu.Lock()
	s.onFail = fn
	s.mu.Unlock()
}

// Done is closed when the push goroutine exits.
func (s *WriterSink) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the error that stopped the sink, if any.
func (s *WriterSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Written returns the number of bytes delivered to the writer.
func (s *WriterSink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *WriterSink) Close() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	if stop == nil {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	s.stop = nil
	s.mu.Unlock()
	close(stop)
	<-done
	return s.reader.Close()
}
