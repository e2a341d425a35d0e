// Package whisper provides whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference. [NativeProvider] links whisper.cpp directly through
// its CGO bindings. Both accept 16 kHz mono float32 samples and return
// time-stamped segments.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("de"))
//	segs, err := p.Transcribe(ctx, samples, stt.Config{})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/privanote/pkg/audio"
	"github.com/MrWong99/privanote/pkg/provider/stt"
)

const (
	// defaultLanguage asks whisper to detect the spoken language.
	defaultLanguage = "auto"

	defaultTimeout = 10 * time.Minute
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server.
// When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default language code sent to the server when the
// request does not carry one. Defaults to "auto".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithHTTPClient replaces the HTTP client. The default client has a 10 minute
// timeout, enough for hour-long recordings on CPU.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider for the whisper.cpp server at serverURL
// (e.g. "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse is the verbose_json body returned by whisper-server.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe encodes samples as WAV and submits them to POST /inference.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, cfg stt.Config) ([]stt.Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if err := audio.EncodeWAV(fw, audio.Float32ToPCM(samples), audio.Canonical); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
		"language":        lang,
		"model":           p.model,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	segs := make([]stt.Segment, 0, len(result.Segments))
	for _, s := range result.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" || isNonSpeech(text) {
			continue
		}
		segs = append(segs, stt.Segment{Start: seconds(s.Start), End: seconds(s.End), Text: text})
	}
	// Servers started without verbose_json support only return the text.
	if len(result.Segments) == 0 {
		if text := strings.TrimSpace(result.Text); text != "" && !isNonSpeech(text) {
			segs = append(segs, stt.Segment{End: audio.Canonical.Duration(len(samples)), Text: text})
		}
	}
	return segs, nil
}

// Load asks the server to switch to the model file at modelPath.
func (p *Provider) Load(ctx context.Context, modelPath string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", modelPath); err != nil {
		return fmt.Errorf("whisper: write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/load", &body)
	if err != nil {
		return fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: load model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whisper: load model: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Close implements stt.Provider. The HTTP provider holds no resources.
func (p *Provider) Close() error { return nil }

// isNonSpeech reports whether text is one of whisper's non-speech markers
// such as "[BLANK_AUDIO]" or "(silence)".
func isNonSpeech(text string) bool {
	if len(text) < 2 {
		return false
	}
	first, last := text[0], text[len(text)-1]
	return (first == '[' && last == ']') || (first == '(' && last == ')')
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
