package server

// Audio encodings accepted on a stream.
const (
	EncodingPCM  = "pcm_s16le"
	EncodingOpus = "opus"
)

// streamConfig is the first message a client sends after connecting. It is
// a JSON text message; everything after it is binary audio.
type streamConfig struct {
	// Encoding selects the payload format of the binary messages:
	// "pcm_s16le" (default) or "opus".
	Encoding string `json:"encoding,omitempty"`

	// SampleRate is the source sample rate in Hz. Defaults to 16000 for
	// PCM and 48000 for Opus. Non-16 kHz audio is resampled on ingest.
	SampleRate int `json:"sample_rate,omitempty"`

	// Channels is the source channel count, 1 or 2. Stereo is downmixed.
	// Defaults to 1.
	Channels int `json:"channels,omitempty"`

	// VAD optionally overrides the server's segmentation tuning for this
	// stream only. Omitted fields keep the server defaults.
	VAD *vadOverrides `json:"vad,omitempty"`
}

// vadOverrides carries the per-stream tunable subset of the segmentation
// config. Pointer fields distinguish "not set" from zero.
type vadOverrides struct {
	PositiveSpeechThreshold *float32 `json:"positive_speech_threshold,omitempty"`
	NegativeSpeechThreshold *float32 `json:"negative_speech_threshold,omitempty"`
	MinSpeechFrames         *int     `json:"min_speech_frames,omitempty"`
	MinSilenceFrames        *int     `json:"min_silence_frames,omitempty"`
	PreSpeechPadMs          *int     `json:"pre_speech_pad_ms,omitempty"`
	PostSpeechPadMs         *int     `json:"post_speech_pad_ms,omitempty"`
	MinSpeechMs             *int     `json:"min_speech_ms,omitempty"`
}

// Event types sent to the client as JSON text messages.
const (
	// EventReady acknowledges the stream config; audio may follow.
	EventReady = "ready"

	// EventSpeechStart marks a confirmed voice onset.
	EventSpeechStart = "speech_start"

	// EventSpeechEnd marks a finalized segment. The next binary message
	// from the server is the segment audio as 16 kHz mono s16le PCM.
	EventSpeechEnd = "speech_end"

	// EventMisfire marks a segment discarded for being too short. No
	// audio follows.
	EventMisfire = "misfire"

	// EventFlushed acknowledges a flush control message after all trailing
	// segment events have been delivered.
	EventFlushed = "flushed"

	// EventError reports a fatal stream error; the connection closes
	// after it.
	EventError = "error"
)

// event is a server-to-client JSON text message.
type event struct {
	Type string `json:"type"`

	// DurationMs is the segment audio duration, set on speech_end.
	DurationMs int `json:"duration_ms,omitempty"`

	// Samples is the segment sample count, set on speech_end.
	Samples int `json:"samples,omitempty"`

	// Frame is the pipeline frame index at which the event fired.
	Frame int64 `json:"frame,omitempty"`

	// Message carries the error description on error events.
	Message string `json:"message,omitempty"`
}
