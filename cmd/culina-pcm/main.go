package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/loqalabs/culinascan/internal/pcm"
	"github.com/loqalabs/culinascan/internal/playback"
)

var version = "0.1.0-dev"

func main() {
	var (
		inPath     string
		outPath    string
		sampleRate int
		channels   int
	)
	decodeCmd := flag.NewFlagSet("decode", flag.ExitOnError)
	decodeCmd.StringVar(&inPath, "in", "speech.b64", "File holding a base64 speech payload")
	decodeCmd.StringVar(&outPath, "out", "speech.wav", "WAV file to write")
	decodeCmd.IntVar(&sampleRate, "rate", pcm.SpeechSampleRate, "Sample rate of the payload")
	decodeCmd.IntVar(&channels, "channels", 1, "Channel count of the payload")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'decode' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "decode":
		decodeCmd.Parse(os.Args[2:])
		buf, err := runDecode(inPath, outPath, sampleRate, channels)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s (%d frames, %s)\n", outPath, buf.Frames(), buf.Duration())
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runDecode(inPath, outPath string, sampleRate, channels int) (*pcm.Buffer, error) {
	payload, err := os.ReadFile(inPath)
	if err != nil {
		return nil, err
	}
	data, err := pcm.Decode(strings.TrimSpace(string(payload)))
	if err != nil {
		return nil, err
	}
	buf, err := pcm.DecodeAudioData(data, sampleRate, channels)
	if err != nil {
		return nil, err
	}
	if err := playback.WriteWAV(outPath, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
