// Package mock provides a test double for the asr package interfaces.
//
// Set TranscribeResult (and optionally TranscribeErr or Delay) before use,
// then inspect TranscribeCalls to verify what was submitted.
//
// Example:
//
//	m := &mock.Transcriber{TranscribeResult: "cat c a t cat"}
//	text, _ := m.Transcribe(ctx, clip)
//	if m.CallCount() != 1 { ... }
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/whizbee/spellcast/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Clip is the clip passed to Transcribe.
	Clip asr.Clip
}

// Transcriber is a mock implementation of asr.Transcriber.
// Fields may be mutated between calls; all access is guarded by a mutex.
type Transcriber struct {
	mu sync.Mutex

	// TranscribeResult is the text returned by Transcribe.
	TranscribeResult string

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// Delay simulates backend latency. Transcribe sleeps this long (or until
	// ctx is done, returning ctx.Err()) before answering.
	Delay time.Duration

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr.
func (m *Transcriber) Transcribe(ctx context.Context, clip asr.Clip) (string, error) {
	m.mu.Lock()
	m.TranscribeCalls = append(m.TranscribeCalls, TranscribeCall{Ctx: ctx, Clip: clip})
	result, errv, delay := m.TranscribeResult, m.TranscribeErr, m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return result, errv
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.TranscribeCalls)
}

// SetErr replaces TranscribeErr. Thread-safe, for flipping a mock between
// failing and healthy mid-test.
func (m *Transcriber) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeErr = err
}

// Reset clears all recorded calls. Thread-safe.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeCalls = nil
}

// Ensure Transcriber implements asr.Transcriber at compile time.
var _ asr.Transcriber = (*Transcriber)(nil)
