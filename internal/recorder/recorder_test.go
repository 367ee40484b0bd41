package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/whizbee/spellcast/internal/vad"
	"github.com/whizbee/spellcast/pkg/audio"
	"github.com/whizbee/spellcast/pkg/audio/mock"
)

// testParams uses detector durations that resolve in a few sampling windows.
func testParams() Params {
	return Params{
		MaxDuration: 10 * time.Second,
		VAD: vad.Config{
			VoiceThresholdDB:   -40,
			SilenceThresholdDB: -45,
			MinSpeechDuration:  100 * time.Millisecond,
			SilenceDuration:    200 * time.Millisecond,
		},
	}
}

// pushAudio scripts d worth of 20 ms frames at the given amplitude.
// 8000 ≈ -12 dB (speech), 0 clamps to the -100 dB floor (silence).
func pushAudio(s *mock.Stream, d time.Duration, amp int16) {
	const frame = 20 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += frame {
		s.Push(mock.Tone(audio.DefaultFormat, frame, amp))
	}
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	if err := testParams().Validate(); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}

	bad := testParams()
	bad.MaxDuration = 0
	bad.VAD.SilenceThresholdDB = -30
	err := bad.Validate()
	if err == nil {
		t.Fatal("invalid params accepted")
	}
}

func TestSession_SilenceFinalizesAtExactAudioTime(t *testing.T) {
	t.Parallel()

	stream := mock.NewStream(128)
	pushAudio(stream, 400*time.Millisecond, 8000) // speech
	pushAudio(stream, 700*time.Millisecond, 0)    // silence
	stream.End()

	r := New(&mock.Source{OpenResult: stream})
	s, err := r.Start(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	rec, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rec.Reason != ReasonSilence {
		t.Errorf("reason = %v, want silence", rec.Reason)
	}
	if !rec.SpeechDetected {
		t.Error("SpeechDetected should be true")
	}
	if rec.Empty() {
		t.Error("a spoken recording must not be Empty")
	}

	// Speech is confirmed at 200 ms, silence starts at the 500 ms sampling
	// boundary and completes 200 ms later: the buffer covers exactly 700 ms.
	if want := 700 * time.Millisecond; rec.Duration != want {
		t.Errorf("duration = %v, want %v", rec.Duration, want)
	}
	if want := int(16000 * 0.7 * 2); len(rec.PCM) != want {
		t.Errorf("PCM length = %d, want %d", len(rec.PCM), want)
	}
	if !stream.Closed() {
		t.Error("capture stream should be released after finalize")
	}
}

func TestSession_NoSpeechHitsDurationCap(t *testing.T) {
	t.Parallel()

	stream := mock.NewStream(128)
	pushAudio(stream, 600*time.Millisecond, 0) // never speaks

	params := testParams()
	params.MaxDuration = 150 * time.Millisecond

	r := New(&mock.Source{OpenResult: stream})
	s, err := r.Start(context.Background(), params)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	rec, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rec.Reason != ReasonTimeout {
		t.Errorf("reason = %v, want timeout", rec.Reason)
	}
	if rec.SpeechDetected {
		t.Error("SpeechDetected should be false")
	}
	if !rec.Empty() {
		t.Error("a speechless recording must be Empty")
	}
	if !stream.Closed() {
		t.Error("capture stream should be released after timeout")
	}
}

func TestSession_DrainedSourceFinalizes(t *testing.T) {
	t.Parallel()

	stream := mock.NewStream(16)
	pushAudio(stream, 100*time.Millisecond, 0)
	stream.End()

	r := New(&mock.Source{OpenResult: stream})
	s, err := r.Start(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	rec, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rec.Reason != ReasonDrained {
		t.Errorf("reason = %v, want drained", rec.Reason)
	}
	if want := 100 * time.Millisecond; rec.Duration != want {
		t.Errorf("duration = %v, want %v", rec.Duration, want)
	}
}

func TestRecorder_SingleActiveSession(t *testing.T) {
	t.Parallel()

	blocking := mock.NewStream(4) // no frames, session stays live
	src := &mock.Source{OpenResult: blocking}
	r := New(src)

	s1, err := r.Start(context.Background(), testParams())
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}

	if _, err := r.Start(context.Background(), testParams()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start error = %v, want ErrAlreadyRecording", err)
	}

	// The rejected Start must not have touched the live session.
	select {
	case <-s1.Done():
		t.Fatal("first session ended by a rejected Start")
	default:
	}

	s1.Cancel()

	// The slot frees once the previous session finalized.
	fresh := mock.NewStream(4)
	fresh.End()
	src.OpenResult = fresh
	s3, err := r.Start(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Start after Cancel: %v", err)
	}
	if rec, err := s3.Wait(context.Background()); err != nil || rec.Reason != ReasonDrained {
		t.Errorf("third session = (%v, %v), want drained recording", rec.Reason, err)
	}
}

func TestSession_CancelDiscardsBuffer(t *testing.T) {
	t.Parallel()

	stream := mock.NewStream(64)
	pushAudio(stream, 200*time.Millisecond, 8000)

	r := New(&mock.Source{OpenResult: stream})
	s, err := r.Start(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond) // let the session consume the script
	s.Cancel()

	rec, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rec.Reason != ReasonCancelled {
		t.Errorf("reason = %v, want cancelled", rec.Reason)
	}
	if rec.PCM != nil {
		t.Errorf("cancelled recording kept %d PCM bytes", len(rec.PCM))
	}
	if want := 200 * time.Millisecond; rec.Duration != want {
		t.Errorf("duration = %v, want %v (kept for diagnostics)", rec.Duration, want)
	}
	if !stream.Closed() {
		t.Error("Cancel must release the capture stream")
	}
}

func TestSession_StopKeepsBuffer(t *testing.T) {
	t.Parallel()

	stream := mock.NewStream(64)
	pushAudio(stream, 200*time.Millisecond, 0)

	r := New(&mock.Source{OpenResult: stream})
	s, err := r.Start(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	rec, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rec.Reason != ReasonManual {
		t.Errorf("reason = %v, want manual", rec.Reason)
	}
	if want := int(16000 * 0.2 * 2); len(rec.PCM) != want {
		t.Errorf("PCM length = %d, want %d", len(rec.PCM), want)
	}
}

func TestSession_ConvertsSourceFormat(t *testing.T) {
	t.Parallel()

	deviceFormat := audio.Format{SampleRate: 48000, Channels: 2}
	stream := mock.NewStream(16)
	stream.Push(mock.Tone(deviceFormat, 100*time.Millisecond, 8000))
	stream.End()

	r := New(&mock.Source{OpenResult: stream})
	s, err := r.Start(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	rec, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rec.Format != audio.DefaultFormat {
		t.Errorf("recording format = %+v, want pipeline format", rec.Format)
	}
	if want := int(16000 * 0.1 * 2); len(rec.PCM) != want {
		t.Errorf("PCM length = %d, want %d (downmixed and resampled)", len(rec.PCM), want)
	}
	if want := 100 * time.Millisecond; rec.Duration != want {
		t.Errorf("duration = %v, want %v", rec.Duration, want)
	}
}

func TestRecorder_StartFailures(t *testing.T) {
	t.Parallel()

	src := &mock.Source{OpenError: audio.ErrDeviceUnavailable}
	r := New(src)

	if _, err := r.Start(context.Background(), testParams()); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("Start error = %v, want audio.ErrDeviceUnavailable", err)
	}

	bad := testParams()
	bad.MaxDuration = -time.Second
	before := src.CallCountOpen
	if _, err := r.Start(context.Background(), bad); err == nil {
		t.Error("Start with invalid params should fail")
	}
	if src.CallCountOpen != before {
		t.Error("invalid params must be rejected before the device is opened")
	}
}

func TestSession_ContextCancellation(t *testing.T) {
	t.Parallel()

	stream := mock.NewStream(4)
	r := New(&mock.Source{OpenResult: stream})

	ctx, cancel := context.WithCancel(context.Background())
	s, err := r.Start(ctx, testParams())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	rec, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rec.Reason != ReasonCancelled {
		t.Errorf("reason = %v, want cancelled", rec.Reason)
	}
	if !stream.Closed() {
		t.Error("context cancellation must release the capture stream")
	}
}
