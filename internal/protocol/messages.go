package protocol

import "time"

// AudioChunk carries narration PCM to edge speakers.
type AudioChunk struct {
	Target     string `json:"target"`
	Utterance  string `json:"utterance"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// PlaybackControl tells edge speakers to cut an utterance short.
type PlaybackControl struct {
	Target    string    `json:"target"`
	Utterance string    `json:"utterance"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// NarrationStatus reports narration lifecycle changes for a recipe card.
type NarrationStatus struct {
	CardID    string    `json:"card_id"`
	Speaking  bool      `json:"speaking"`
	Timestamp time.Time `json:"timestamp"`
}

// NarrationRequest asks the runtime to read text aloud on behalf of a card.
type NarrationRequest struct {
	CardID string `json:"card_id"`
	Text   string `json:"text"`
}

// NarrationStop silences a card, or whatever is speaking when CardID is empty.
type NarrationStop struct {
	CardID string `json:"card_id,omitempty"`
}

// AnalysisStatus is published after every ingredient analysis attempt.
type AnalysisStatus struct {
	RequestID   string    `json:"request_id"`
	Succeeded   bool      `json:"succeeded"`
	Ingredients int       `json:"ingredients,omitempty"`
	Recipes     int       `json:"recipes,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectPlaybackAudioPrefix   = "playback.audio"
	SubjectPlaybackControlPrefix = "playback.control"
	SubjectNarrationStarted      = "narration.started"
	SubjectNarrationEnded        = "narration.ended"
	SubjectNarrationRequest      = "narration.request"
	SubjectNarrationStop         = "narration.stop"
	SubjectAnalysisCompleted     = "analysis.completed"

	PlaybackActionStop = "stop"
)
