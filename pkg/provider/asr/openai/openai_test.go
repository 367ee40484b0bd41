package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/whizbee/spellcast/pkg/audio"
	"github.com/whizbee/spellcast/pkg/audio/encode"
	"github.com/whizbee/spellcast/pkg/provider/asr"
)

func testClip() asr.Clip {
	pcm := make([]byte, 1600*2)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = 0xE8
		pcm[i+1] = 0x03
	}
	return asr.Clip{PCM: pcm, Format: audio.Format{SampleRate: 16000, Channels: 1}}
}

// transcriptionStub records the upload and answers like the OpenAI
// transcription endpoint.
type transcriptionStub struct {
	t *testing.T

	path     string
	model    string
	language string
	prompt   string
	filename string
	file     []byte
}

func (s *transcriptionStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.path = r.URL.Path
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		s.t.Errorf("parse multipart form: %v", err)
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	s.model = r.FormValue("model")
	s.language = r.FormValue("language")
	s.prompt = r.FormValue("prompt")

	f, hdr, err := r.FormFile("file")
	if err != nil {
		s.t.Errorf("missing file field: %v", err)
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer f.Close()
	s.filename = hdr.Filename
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(f); err != nil {
		s.t.Errorf("read file field: %v", err)
	}
	s.file = buf.Bytes()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"text": " p i z z a "})
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("New with empty apiKey should fail")
	}
	if _, err := New("key", WithUploadCodec(encode.CodecOpus)); err == nil {
		t.Error("New with opus upload codec should fail")
	}
}

func TestTranscribe_UploadsWAV(t *testing.T) {
	t.Parallel()

	stub := &transcriptionStub{t: t}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	p, err := New("test-key",
		WithBaseURL(srv.URL),
		WithLanguage("en"),
		WithPrompt("a child spelling a word letter by letter"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), testClip())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "p i z z a" {
		t.Errorf("text = %q, want trimmed transcript", text)
	}
	if stub.path != "/audio/transcriptions" {
		t.Errorf("request path = %q, want /audio/transcriptions", stub.path)
	}
	if stub.model != "whisper-1" {
		t.Errorf("model field = %q, want whisper-1", stub.model)
	}
	if stub.language != "en" {
		t.Errorf("language field = %q, want en", stub.language)
	}
	if stub.prompt == "" {
		t.Error("prompt field missing from upload")
	}
	if stub.filename != "clip.wav" {
		t.Errorf("upload filename = %q, want clip.wav", stub.filename)
	}
	if len(stub.file) < 44 || string(stub.file[:4]) != "RIFF" {
		t.Errorf("uploaded file is not a WAV container (%d bytes)", len(stub.file))
	}
}

func TestTranscribe_UploadsFLAC(t *testing.T) {
	t.Parallel()

	stub := &transcriptionStub{t: t}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	p, err := New("test-key",
		WithBaseURL(srv.URL),
		WithUploadCodec(encode.CodecFLAC),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), testClip()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if stub.filename != "clip.flac" {
		t.Errorf("upload filename = %q, want clip.flac", stub.filename)
	}
	if len(stub.file) < 4 || string(stub.file[:4]) != "fLaC" {
		t.Errorf("uploaded file is not a FLAC stream (%d bytes)", len(stub.file))
	}
}

func TestTranscribe_EmptyClipRejected(t *testing.T) {
	t.Parallel()

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), asr.Clip{}); err == nil {
		t.Fatal("Transcribe of empty clip should fail")
	}
}
