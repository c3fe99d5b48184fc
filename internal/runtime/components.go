package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/culinascan/internal/bus"
	"github.com/loqalabs/culinascan/internal/config"
	"github.com/loqalabs/culinascan/internal/gemini"
	"github.com/loqalabs/culinascan/internal/playback"
	"github.com/loqalabs/culinascan/internal/speech"
	"github.com/loqalabs/culinascan/internal/vision"
)

func newGeminiClient(cfg config.GeminiConfig) *gemini.Client {
	return gemini.NewClient(cfg.Endpoint, cfg.APIKey, time.Duration(cfg.TimeoutMS)*time.Millisecond)
}

func newAnalyzer(cfg config.Config, client *gemini.Client) (vision.Analyzer, error) {
	switch cfg.Vision.Mode {
	case "", "mock":
		return vision.NewMockAnalyzer(), nil
	case "gemini":
		return vision.NewGeminiAnalyzer(client, cfg.Vision.Model), nil
	default:
		return nil, fmt.Errorf("unsupported vision mode %q", cfg.Vision.Mode)
	}
}

func newSynthesizer(cfg config.Config, client *gemini.Client) (speech.Synthesizer, error) {
	switch cfg.Speech.Mode {
	case "", "mock":
		return speech.NewMockSynth(cfg.Speech.SampleRate, time.Duration(cfg.Speech.MockWordMS)*time.Millisecond), nil
	case "gemini":
		return speech.NewGeminiSynth(client, cfg.Speech.Model), nil
	case "exec":
		return speech.NewExecSynth(cfg.Speech.Command, cfg.Speech.SampleRate, cfg.Speech.Channels)
	default:
		return nil, fmt.Errorf("unsupported speech mode %q", cfg.Speech.Mode)
	}
}

func newSink(cfg config.PlaybackConfig, busClient *bus.Client, logger *slog.Logger) (playback.Sink, error) {
	switch cfg.Sink {
	case "", "clock":
		return playback.NewClockSink(), nil
	case "wav":
		return playback.NewWAVSink(cfg.OutputDir)
	case "bus":
		if busClient == nil {
			return nil, fmt.Errorf("playback sink %q requires the bus", cfg.Sink)
		}
		return playback.NewBusSink(busClient, cfg.Target, time.Duration(cfg.ChunkDurationMS)*time.Millisecond, logger), nil
	default:
		return nil, fmt.Errorf("unsupported playback sink %q", cfg.Sink)
	}
}
