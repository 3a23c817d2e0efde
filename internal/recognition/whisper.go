//go:build whisper

package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"voicecmd/internal/config"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/gordonklaus/portaudio"
	vad "github.com/maxhawkins/go-webrtcvad"
	"github.com/sirupsen/logrus"
)

// whisperCapability captures one utterance from the microphone, segments it
// with webrtc VAD and transcribes it with whisper.cpp.
type whisperCapability struct {
	cfg    *config.Config
	logger *logrus.Logger
	model  whisper.Model

	// portaudio streams are opened one at a time
	captureMu sync.Mutex
}

func newWhisperCapability(cfg *config.Config, logger *logrus.Logger) (Capability, error) {
	if cfg.Audio.Channels != 1 {
		return nil, fmt.Errorf("only mono input supported; set audio.channels = 1")
	}
	if cfg.Audio.FrameMS != 10 && cfg.Audio.FrameMS != 20 && cfg.Audio.FrameMS != 30 {
		return nil, fmt.Errorf("audio.frame_ms must be 10, 20, or 30 (got %d)", cfg.Audio.FrameMS)
	}
	switch cfg.Audio.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("sample_rate must be 8k/16k/32k/48k for webrtc VAD (got %d)", cfg.Audio.SampleRate)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrUnsupported, err)
	}
	model, err := whisper.New(cfg.ASR.ModelPath)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &whisperCapability{cfg: cfg, logger: logger, model: model}, nil
}

func (c *whisperCapability) Name() string { return "whisper" }

func (c *whisperCapability) NewSession(s Settings) (Session, error) {
	v, err := vad.New()
	if err != nil {
		return nil, fmt.Errorf("vad init: %w", err)
	}
	if err := v.SetMode(c.cfg.VAD.Aggressiveness); err != nil {
		return nil, fmt.Errorf("vad mode: %w", err)
	}
	return &whisperSession{cap: c, settings: s, vad: v}, nil
}

// Close releases the model and portaudio.
func (c *whisperCapability) Close() error {
	err := c.model.Close()
	_ = portaudio.Terminate()
	return err
}

type whisperSession struct {
	cap      *whisperCapability
	settings Settings
	vad      *vad.VAD

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

func (s *whisperSession) Start(ctx context.Context, obs Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("session already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx, obs)
	return nil
}

func (s *whisperSession) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *whisperSession) run(ctx context.Context, obs Observer) {
	defer obs.OnEnd()
	defer s.Abort()

	lang := WhisperLanguage(s.settings.Language)
	if !s.languageSupported(lang) {
		obs.OnError(ReasonLanguageNotSupported)
		return
	}
	if s.settings.InterimResults {
		s.cap.logger.Debug("whisper engine produces final results only; interim results ignored")
	}

	s.cap.captureMu.Lock()
	defer s.cap.captureMu.Unlock()

	cfg := s.cap.cfg
	dev, err := selectDevice(cfg.Audio.DeviceName)
	if err != nil {
		s.cap.logger.Errorf("select device: %v", err)
		obs.OnError(ReasonAudioCapture)
		return
	}
	frameSamples := cfg.Audio.SampleRate * cfg.Audio.FrameMS / 1000
	if ok := vad.ValidRateAndFrameLength(cfg.Audio.SampleRate, frameSamples); !ok {
		s.cap.logger.Errorf("invalid frame_ms %d for sample_rate %d", cfg.Audio.FrameMS, cfg.Audio.SampleRate)
		obs.OnError(ReasonAudioCapture)
		return
	}
	buf := make([]int16, frameSamples)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Audio.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.Audio.SampleRate),
		FramesPerBuffer: frameSamples,
	}, &buf)
	if err != nil {
		s.cap.logger.Errorf("open stream: %v", err)
		obs.OnError(ReasonAudioCapture)
		return
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		s.cap.logger.Errorf("start stream: %v", err)
		obs.OnError(ReasonAudioCapture)
		return
	}
	defer stream.Stop()
	s.cap.logger.Infof("listening on mic: %s @ %d Hz", dev.Name, cfg.Audio.SampleRate)

	for {
		pcm, reason := s.captureUtterance(ctx, stream, buf)
		if reason != "" {
			obs.OnError(reason)
			return
		}
		if dir := cfg.Recognition.DumpDir; dir != "" {
			if path, err := DumpUtterance(dir, pcm, cfg.Audio.SampleRate, time.Now()); err != nil {
				s.cap.logger.Warnf("dump utterance: %v", err)
			} else {
				s.cap.logger.Debugf("utterance written to %s", path)
			}
		}
		samples := PCMToFloat(pcm)
		if cfg.Audio.SampleRate != whisper.SampleRate {
			samples = Resample(samples, cfg.Audio.SampleRate, whisper.SampleRate)
		}
		text, err := transcribe(s.cap.model, lang, cfg.ASR.Threads, samples)
		if err != nil {
			s.cap.logger.Errorf("transcribe: %v", err)
			obs.OnError(ReasonTranscription)
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			obs.OnError(ReasonNoSpeech)
			return
		}
		obs.OnResult(Single(text, 0))
		if !s.settings.Continuous {
			return
		}
	}
}

func (s *whisperSession) languageSupported(lang string) bool {
	if lang == "auto" {
		return true
	}
	if !s.cap.model.IsMultilingual() {
		return lang == "en"
	}
	for _, l := range s.cap.model.Languages() {
		if l == lang {
			return true
		}
	}
	return false
}

// captureUtterance reads frames until speech is followed by enough silence.
// A non-empty reason means the session should end with that error.
func (s *whisperSession) captureUtterance(ctx context.Context, stream *portaudio.Stream, buf []int16) ([]int16, string) {
	cfg := s.cap.cfg
	var (
		chunk       []int16
		inSpeech    bool
		lastVoice   time.Time
		speechBegan time.Time
		started     = time.Now()
		noSpeech    = cfg.NoSpeechTimeout()
		silenceDur  = time.Duration(cfg.VAD.SilenceMS) * time.Millisecond
		minSpeech   = time.Duration(cfg.VAD.MinSpeechMS) * time.Millisecond
		maxSegDur   = time.Duration(cfg.VAD.MaxSegmentMS) * time.Millisecond
	)
	for {
		select {
		case <-ctx.Done():
			return nil, ReasonAborted
		default:
		}
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.cap.logger.Warn("input overflow")
				continue
			}
			s.cap.logger.Errorf("stream read: %v", err)
			return nil, ReasonAudioCapture
		}
		now := time.Now()
		voice, err := s.vad.Process(cfg.Audio.SampleRate, int16ToBytes(buf))
		if err != nil {
			s.cap.logger.Errorf("vad: %v", err)
			return nil, ReasonAudioCapture
		}
		if voice {
			if !inSpeech {
				inSpeech = true
				speechBegan = now
				chunk = chunk[:0]
			}
			chunk = append(chunk, buf...)
			lastVoice = now
		} else if inSpeech {
			chunk = append(chunk, buf...)
			if now.Sub(lastVoice) >= silenceDur {
				if lastVoice.Sub(speechBegan) < minSpeech {
					// too short to be a command; keep waiting
					inSpeech = false
					chunk = chunk[:0]
					continue
				}
				return append([]int16(nil), chunk...), ""
			}
		}
		if inSpeech && maxSegDur > 0 && now.Sub(speechBegan) >= maxSegDur {
			return append([]int16(nil), chunk...), ""
		}
		if !inSpeech && noSpeech > 0 && now.Sub(started) >= noSpeech {
			return nil, ReasonNoSpeech
		}
	}
}

func int16ToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

func transcribe(model whisper.Model, lang string, threads int, samples []float32) (string, error) {
	wctx, err := model.NewContext()
	if err != nil {
		return "", err
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))
	if err := wctx.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("set language %q: %w", lang, err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		b.WriteString(seg.Text)
		if !strings.HasSuffix(seg.Text, " ") {
			b.WriteByte(' ')
		}
	}
	return b.String(), nil
}

// TranscribeFile runs whisper over a WAV file and returns the text.
func TranscribeFile(cfg *config.Config, path string) (string, error) {
	samples, rate, err := ReadWAV(path)
	if err != nil {
		return "", err
	}
	if rate != whisper.SampleRate {
		samples = Resample(samples, rate, whisper.SampleRate)
	}
	model, err := whisper.New(cfg.ASR.ModelPath)
	if err != nil {
		return "", fmt.Errorf("load model: %w", err)
	}
	defer func() { _ = model.Close() }()
	text, err := transcribe(model, WhisperLanguage(cfg.Recognition.Language), cfg.ASR.Threads, samples)
	return strings.TrimSpace(text), err
}

func selectDevice(preferred string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(preferred)) {
				return d, nil
			}
		}
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input devices found")
}
