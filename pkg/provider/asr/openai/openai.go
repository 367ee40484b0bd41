// Package openai provides a transcriber backed by the OpenAI audio
// transcription API (whisper-1 and the gpt-4o transcribe family).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/whizbee/spellcast/pkg/audio/encode"
	"github.com/whizbee/spellcast/pkg/provider/asr"
)

// Compile-time assertion that Provider implements asr.Transcriber.
var _ asr.Transcriber = (*Provider)(nil)

// Provider implements asr.Transcriber using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    oai.AudioModel
	language string
	prompt   string
	codec    encode.Codec
}

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	timeout  time.Duration
	model    string
	language string
	prompt   string
	codec    encode.Codec
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithModel sets the transcription model (e.g., "whisper-1",
// "gpt-4o-mini-transcribe"). Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithLanguage sets the ISO-639-1 input language hint (e.g., "en").
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithPrompt sets the transcription prompt. A short description of the
// expected speech ("a child spelling a word letter by letter") measurably
// improves letter-sequence recognition.
func WithPrompt(prompt string) Option {
	return func(c *config) {
		c.prompt = prompt
	}
}

// WithUploadCodec selects the container the clip is uploaded in.
// encode.CodecWAV (default) and encode.CodecFLAC are supported; FLAC roughly
// halves upload size for the same audio.
func WithUploadCodec(codec encode.Codec) Option {
	return func(c *config) {
		c.codec = codec
	}
}

// New constructs a new OpenAI transcription Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{
		model:    string(oai.AudioModelWhisper1),
		language: "en",
		codec:    encode.CodecWAV,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.codec != encode.CodecWAV && cfg.codec != encode.CodecFLAC {
		return nil, fmt.Errorf("openai: unsupported upload codec %q", cfg.codec)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    oai.AudioModel(cfg.model),
		language: cfg.language,
		prompt:   cfg.prompt,
		codec:    cfg.codec,
	}, nil
}

// Transcribe materializes the clip in the configured container, uploads it to
// the transcription endpoint, and returns the recognized text.
func (p *Provider) Transcribe(ctx context.Context, clip asr.Clip) (string, error) {
	if clip.Empty() {
		return "", asr.ErrEmptyClip
	}

	var payload []byte
	switch p.codec {
	case encode.CodecFLAC:
		data, err := encode.FLAC(clip.PCM, clip.Format)
		if err != nil {
			return "", fmt.Errorf("openai: encode clip: %w", err)
		}
		payload = data
	default:
		payload = encode.WAV(clip.PCM, clip.Format)
	}
	filename := "clip." + string(p.codec)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(payload), filename, p.codec.MIME()),
		Model: p.model,
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}
	if p.prompt != "" {
		params.Prompt = param.NewOpt(p.prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription request: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
