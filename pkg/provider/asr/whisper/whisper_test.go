package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/whizbee/spellcast/pkg/audio"
	"github.com/whizbee/spellcast/pkg/provider/asr"
)

func testClip(t *testing.T) asr.Clip {
	t.Helper()
	// 100 ms of mid-level audio at 16 kHz mono.
	pcm := make([]byte, 1600*2)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = 0xE8
		pcm[i+1] = 0x03 // 1000
	}
	return asr.Clip{PCM: pcm, Format: audio.Format{SampleRate: 16000, Channels: 1}}
}

func TestNew_RequiresServerURL(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") should fail")
	}
}

func TestTranscribe_PostsWAVAndParsesText(t *testing.T) {
	t.Parallel()

	var gotPath, gotLanguage, gotModel string
	var gotFile []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")

		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(f); err != nil {
			t.Errorf("read file field: %v", err)
		}
		gotFile = buf.Bytes()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": " cat. c a t cat "})
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithLanguage("en"), WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), testClip(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "cat. c a t cat" {
		t.Errorf("text = %q, want trimmed transcript", text)
	}
	if gotPath != "/inference" {
		t.Errorf("request path = %q, want /inference", gotPath)
	}
	if gotLanguage != "en" || gotModel != "base.en" {
		t.Errorf("hint fields = (%q, %q), want (en, base.en)", gotLanguage, gotModel)
	}
	if len(gotFile) < 44 || string(gotFile[:4]) != "RIFF" {
		t.Errorf("uploaded file is not a WAV container (%d bytes)", len(gotFile))
	}
}

func TestTranscribe_ServerErrorSurfaces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), testClip(t)); err == nil {
		t.Fatal("Transcribe should fail on HTTP 500")
	}
}

func TestTranscribe_EmptyClipRejected(t *testing.T) {
	t.Parallel()

	p, err := New("http://localhost:1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Transcribe(context.Background(), asr.Clip{})
	if !errors.Is(err, asr.ErrEmptyClip) {
		t.Fatalf("err = %v, want asr.ErrEmptyClip", err)
	}
}

func TestTranscribe_ContextCancellation(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, testClip(t)); err == nil {
		t.Fatal("Transcribe should fail when ctx is already cancelled")
	}
}
