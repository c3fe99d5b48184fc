package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/culinascan/internal/pcm"
)

func TestRunDecodeWritesWAV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "speech.b64")
	out := filepath.Join(dir, "speech.wav")
	if err := os.WriteFile(in, []byte(pcm.Encode(make([]int16, 2400))+"\n"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	buf, err := runDecode(in, out, pcm.SpeechSampleRate, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Frames() != 2400 {
		t.Fatalf("expected 2400 frames, got %d", buf.Frames())
	}
	info, err := os.Stat(out)
	if err != nil || info.Size() <= 2400*2 {
		t.Fatalf("unexpected wav output: %v", err)
	}
}

func TestRunDecodeRejectsMalformedPayload(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "speech.b64")
	if err := os.WriteFile(in, []byte("%%%"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	_, err := runDecode(in, filepath.Join(dir, "out.wav"), pcm.SpeechSampleRate, 1)
	if !errors.Is(err, pcm.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}
