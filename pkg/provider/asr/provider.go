// Package asr defines the Transcriber interface for speech recognition backends.
//
// A transcriber wraps a batch speech-to-text service (a local whisper.cpp
// server, the OpenAI transcription API, or Deepgram) behind a single call:
// hand it a finalized PCM clip, get back one best-effort plain-text
// transcript. Spelling attempts are short (a few seconds of "cat. c. a. t.
// cat"), so there is no streaming surface: the whole clip is in memory before
// a Transcriber is ever called.
//
// Transcribers return the raw transcript only. Confidence is derived
// downstream from the shape of the text, never from provider-reported scores,
// so results stay comparable across backends.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"
	"errors"
)

// ErrEmptyClip is returned by Transcribe when the clip holds no audio.
// Callers are expected to filter empty recordings before dispatch; providers
// reject them rather than bill a round-trip for silence.
var ErrEmptyClip = errors.New("asr: clip holds no audio")

// Transcriber is the abstraction over any batch speech recognition backend.
//
// Transcribe blocks until the backend returns, the clip is rejected, or ctx
// is done. An empty transcript with a nil error is a valid outcome: the
// backend heard nothing it could recognize.
type Transcriber interface {
	// Transcribe submits the clip and returns the recognized text.
	// The text is returned as-is apart from leading/trailing whitespace;
	// callers tokenize and normalize it themselves.
	Transcribe(ctx context.Context, clip Clip) (string, error)
}
