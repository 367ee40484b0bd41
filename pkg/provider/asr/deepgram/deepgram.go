// Package deepgram provides a Deepgram-backed transcriber using the Deepgram
// streaming WebSocket API.
//
// Deepgram's batch (pre-recorded) endpoint bills per file and queues behind
// larger jobs; the streaming endpoint returns results for a few seconds of
// audio in near real time. The transcriber therefore runs each clip as a
// short-lived streaming session: dial, push the audio, send CloseStream,
// collect the flushed finals, hang up.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/whizbee/spellcast/pkg/audio"
	"github.com/whizbee/spellcast/pkg/audio/encode"
	"github.com/whizbee/spellcast/pkg/provider/asr"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// linear16ChunkBytes is the raw PCM message size: 8 KiB is 256 ms of
	// 16 kHz mono audio, well within Deepgram's recommended 20-250 ms range
	// once network buffering is accounted for.
	linear16ChunkBytes = 8192
)

// closeStreamMsg tells Deepgram to flush pending audio and finish the session.
var closeStreamMsg = []byte(`{"type":"CloseStream"}`)

// Compile-time assertion that Provider implements asr.Transcriber.
var _ asr.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEncoding selects the wire encoding for the audio: encode.CodecWAV maps
// to Deepgram's raw "linear16", and encode.CodecFLAC / encode.CodecOpus send
// compressed payloads. Defaults to linear16.
func WithEncoding(codec encode.Codec) Option {
	return func(p *Provider) {
		p.codec = codec
	}
}

// WithEndpoint overrides the Deepgram WebSocket endpoint. Intended for
// self-hosted Deepgram deployments and tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements asr.Transcriber backed by the Deepgram streaming API.
// It holds no per-clip state and is safe for concurrent use.
type Provider struct {
	apiKey   string
	model    string
	language string
	codec    encode.Codec
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		codec:    encode.CodecWAV,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	if !p.codec.IsValid() {
		return nil, fmt.Errorf("deepgram: unsupported encoding %q", p.codec)
	}
	return p, nil
}

// Transcribe streams the clip through a Deepgram session and returns the
// concatenated final transcripts.
func (p *Provider) Transcribe(ctx context.Context, clip asr.Clip) (string, error) {
	if clip.Empty() {
		return "", asr.ErrEmptyClip
	}

	msgs, err := p.payload(clip)
	if err != nil {
		return "", err
	}
	wsURL, err := p.buildURL(clip.Format)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}

	// Collect finals until the server hangs up. Deepgram answers CloseStream
	// by flushing remaining results and closing with a normal status.
	results := make(chan readResult, 1)
	go collectFinals(ctx, conn, results)

	for _, msg := range msgs {
		if err := conn.Write(ctx, websocket.MessageBinary, msg); err != nil {
			conn.Close(websocket.StatusInternalError, "send failed")
			return "", fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, closeStreamMsg); err != nil {
		conn.Close(websocket.StatusInternalError, "send failed")
		return "", fmt.Errorf("deepgram: close stream: %w", err)
	}

	res := <-results
	if res.err != nil {
		conn.Close(websocket.StatusInternalError, "read failed")
		return "", fmt.Errorf("deepgram: receive results: %w", res.err)
	}
	conn.Close(websocket.StatusNormalClosure, "transcription complete")
	return strings.TrimSpace(strings.Join(res.parts, " ")), nil
}

type readResult struct {
	parts []string
	err   error
}

// collectFinals reads JSON messages until the connection ends, keeping the
// final transcripts. A normal closure (or any closure after results arrived)
// counts as success; closing with nothing received is an error.
func collectFinals(ctx context.Context, conn *websocket.Conn, out chan<- readResult) {
	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || len(parts) > 0 {
				out <- readResult{parts: parts}
			} else {
				out <- readResult{err: err}
			}
			return
		}
		if text, ok := parseResponse(msg); ok && text != "" {
			parts = append(parts, text)
		}
	}
}

// payload materializes the clip into the WebSocket messages for the
// configured encoding: chunked raw PCM for linear16, a single FLAC stream, or
// one Opus packet per message.
func (p *Provider) payload(clip asr.Clip) ([][]byte, error) {
	switch p.codec {
	case encode.CodecFLAC:
		data, err := encode.FLAC(clip.PCM, clip.Format)
		if err != nil {
			return nil, fmt.Errorf("deepgram: encode clip: %w", err)
		}
		return [][]byte{data}, nil

	case encode.CodecOpus:
		enc, err := encode.NewOpusEncoder(clip.Format)
		if err != nil {
			return nil, fmt.Errorf("deepgram: encode clip: %w", err)
		}
		packets, err := enc.EncodeAll(clip.PCM)
		if err != nil {
			return nil, fmt.Errorf("deepgram: encode clip: %w", err)
		}
		return packets, nil

	default:
		msgs := make([][]byte, 0, (len(clip.PCM)+linear16ChunkBytes-1)/linear16ChunkBytes)
		for start := 0; start < len(clip.PCM); start += linear16ChunkBytes {
			end := min(start+linear16ChunkBytes, len(clip.PCM))
			msgs = append(msgs, clip.PCM[start:end])
		}
		return msgs, nil
	}
}

// wireEncoding maps a codec to Deepgram's encoding parameter value.
func (p *Provider) wireEncoding() string {
	switch p.codec {
	case encode.CodecFLAC:
		return "flac"
	case encode.CodecOpus:
		return "opus"
	default:
		return "linear16"
	}
}

// buildURL constructs the streaming endpoint URL for the given audio format.
func (p *Provider) buildURL(format audio.Format) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", p.wireEncoding())
	q.Set("sample_rate", strconv.Itoa(format.SampleRate))
	if format.Channels > 0 {
		q.Set("channels", strconv.Itoa(format.Channels))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResponse extracts the transcript from a raw Deepgram message.
// Returns ("", false) for non-Results events, interim results, and messages
// that should be ignored.
func parseResponse(data []byte) (string, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false
	}
	if resp.Type != "Results" || !resp.IsFinal {
		return "", false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return "", false
	}
	return resp.Channel.Alternatives[0].Transcript, true
}
