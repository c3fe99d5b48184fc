package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/loqalabs/culinascan/internal/gemini"
	"github.com/loqalabs/culinascan/internal/pcm"
)

func TestGeminiSynthRequestsAudio(t *testing.T) {
	payload := pcm.Encode([]int16{1, 2, 3})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gemini.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		cfg := req.GenerationConfig
		if cfg == nil || len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != "AUDIO" {
			t.Errorf("expected audio modality, got %+v", cfg)
		}
		if cfg != nil && cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
			t.Errorf("unexpected voice")
		}
		if got := req.Contents[0].Parts[0].Text; got != NarrationPrompt+"Chop the onions." {
			t.Errorf("unexpected prompt %q", got)
		}
		_ = json.NewEncoder(w).Encode(gemini.Response{Candidates: []gemini.Candidate{{
			Content: gemini.Content{Parts: []gemini.Part{{InlineData: &gemini.Blob{MimeType: "audio/L16;rate=24000", Data: payload}}}},
		}}})
	}))
	defer srv.Close()

	synth := NewGeminiSynth(gemini.NewClient(srv.URL, "key", time.Second), "tts-model")
	got, err := synth.Synthesize(context.Background(), Request{Text: "Chop the onions.", Voice: "Kore"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if got != payload {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestGeminiSynthWithoutAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	synth := NewGeminiSynth(gemini.NewClient(srv.URL, "", time.Second), "tts-model")
	if _, err := synth.Synthesize(context.Background(), Request{Text: "x", Voice: "Kore"}); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
}

func TestMockSynthDuration(t *testing.T) {
	synth := NewMockSynth(pcm.SpeechSampleRate, 10*time.Millisecond)
	payload, err := synth.Synthesize(context.Background(), Request{Text: "slice the carrots thinly"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	data, err := pcm.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	buf, err := pcm.DecodeAudioData(data, pcm.SpeechSampleRate, 1)
	if err != nil {
		t.Fatalf("decode audio: %v", err)
	}
	if buf.Duration() != 40*time.Millisecond {
		t.Fatalf("expected 40ms, got %s", buf.Duration())
	}
	if _, err := synth.Synthesize(context.Background(), Request{Text: "  "}); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio for blank text, got %v", err)
	}
}

func TestExecSynthJoinsChunks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script backend")
	}
	first := pcm.Encode([]int16{1, 2})
	second := pcm.Encode([]int16{3})
	script := filepath.Join(t.TempDir(), "speak.sh")
	body := "#!/bin/sh\ncat >/dev/null\n" +
		"echo '{\"pcm_base64\":\"" + first + "\"}'\n" +
		"echo '{\"pcm_base64\":\"" + second + "\",\"final\":true}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	synth, err := NewExecSynth(script, pcm.SpeechSampleRate, 1)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	got, err := synth.Synthesize(context.Background(), Request{Text: "hello", Voice: "Kore"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if got != pcm.Encode([]int16{1, 2, 3}) {
		t.Fatalf("unexpected joined payload %q", got)
	}
}

func TestNewExecSynthRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecSynth("   ", pcm.SpeechSampleRate, 1); err == nil {
		t.Fatal("expected error for empty command")
	}
}
