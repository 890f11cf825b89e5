package transcribe

import "context"

// ProgressFunc receives percent values in [0,100]. It may be invoked zero or
// many times before Transcribe returns.
type ProgressFunc func(percent float64)

// Engine is the external speech-to-text capability. Implementations block
// for the duration of the transcription; they must honor ctx cancellation.
type Engine interface {
	Transcribe(ctx context.Context, mediaPath string, onProgress ProgressFunc) (string, error)
}
