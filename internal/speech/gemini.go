package speech

import (
	"context"
	"fmt"

	"github.com/loqalabs/culinascan/internal/gemini"
)

// NarrationPrompt prefixes every text sent to the hosted speech model.
const NarrationPrompt = "Read this cooking instruction clearly and helpfully: "

type geminiSynth struct {
	client *gemini.Client
	model  string
}

func NewGeminiSynth(client *gemini.Client, model string) Synthesizer {
	return &geminiSynth{client: client, model: model}
}

func (g *geminiSynth) Synthesize(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.GenerateContent(ctx, g.model, gemini.Request{
		Contents: []gemini.Content{{Parts: []gemini.Part{{Text: NarrationPrompt + req.Text}}}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &gemini.SpeechConfig{
				VoiceConfig: &gemini.VoiceConfig{
					PrebuiltVoiceConfig: &gemini.PrebuiltVoiceConfig{VoiceName: req.Voice},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("speech request: %w", err)
	}
	blob := resp.InlineData()
	if blob == nil || blob.Data == "" {
		return "", ErrNoAudio
	}
	return blob.Data, nil
}
