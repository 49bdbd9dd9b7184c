// Package engine provides provider adapters for external synthesis
// backends. The HTTP adapter speaks the gateway's provider API contract
// and maps backend failures onto the provider error kinds.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/tts-gateway/internal/core"
)

// API endpoints and paths.
const (
	apiSynthesize = "/v1/synthesize"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	acceptAudio       = "audio/*"
)

// Machine-readable error codes the backend may report.
const (
	codeUnsupportedLanguage = "unsupported_language"
	codeUnsupportedVoice    = "unsupported_voice"
	codeTextTooLong         = "text_too_long"
)

// HTTPProvider is a synthesis provider backed by an HTTP service.
// It encapsulates the HTTP configuration and implements core.Provider.
type HTTPProvider struct {
	name         string
	baseURL      string
	nativeFormat core.AudioFormat
	httpClient   *http.Client
}

// synthesizeRequest defines the JSON payload for synthesis requests.
type synthesizeRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Voice    string  `json:"voice,omitempty"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
}

// errorResponse represents a structured error from the backend. The error
// code provides the machine-readable classification the router needs.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPProvider creates a provider for the backend at baseURL. The name
// registers the engine with the router; nativeFormat declares the container
// format of the raw audio the backend produces. The timeout bounds every
// request made by this provider.
func NewHTTPProvider(
	name, baseURL string,
	nativeFormat core.AudioFormat,
	timeout time.Duration,
) *HTTPProvider {
	return &HTTPProvider{
		name:         name,
		baseURL:      baseURL,
		nativeFormat: nativeFormat,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the engine name the provider is registered under.
func (p *HTTPProvider) Name() string {
	return p.name
}

// NativeFormat returns the container format of the backend's raw audio.
func (p *HTTPProvider) NativeFormat() core.AudioFormat {
	return p.nativeFormat
}

// Synthesize sends a synthesis request and returns the raw audio bytes.
// Backend failures are mapped onto the provider error kinds so the router
// can distinguish hard rejections from transient faults.
func (p *HTTPProvider) Synthesize(
	ctx context.Context,
	text, lang, voice string,
	rate, pitch float64,
) ([]byte, error) {
	requestBody, err := json.Marshal(synthesizeRequest{
		Text:     text,
		Language: lang,
		Voice:    voice,
		Rate:     rate,
		Pitch:    pitch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + apiSynthesize

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, acceptAudio)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: engine %s at %s: %w",
			core.ErrProviderUnavailable, p.name, p.baseURL, err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyError(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: failed to read audio data: %w",
			core.ErrProviderTransient, err,
		)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf(
			"%w: received empty audio data", core.ErrProviderTransient,
		)
	}

	return audioData, nil
}

// Probe verifies the backend is running and able to serve requests.
func (p *HTTPProvider) Probe(ctx context.Context) error {
	url := p.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(
			"%w: health check failed for %s: %w",
			core.ErrProviderUnavailable, p.baseURL, err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(
			"%w: health check returned status %s",
			core.ErrProviderUnavailable, resp.Status,
		)
	}

	return nil
}

// classifyError decodes a structured JSON error from the backend and maps
// it onto a provider error kind. Non-JSON errors fall back to the raw body
// so diagnostic information is preserved.
func (p *HTTPProvider) classifyError(resp *http.Response) error {
	kind := kindForStatus(resp.StatusCode)

	var structured errorResponse

	err := json.NewDecoder(resp.Body).Decode(&structured)
	if err == nil {
		if codeKind := kindForCode(structured.ErrorCode); codeKind != nil {
			kind = codeKind
		}

		return fmt.Errorf(
			"%w: engine %s (%s): %s",
			kind, p.name, resp.Status, structured.Detail,
		)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		"%w: engine %s returned %s: %s",
		kind, p.name, resp.Status, string(body),
	)
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusRequestEntityTooLarge:
		return core.ErrTextTooLong
	case status == http.StatusServiceUnavailable:
		return core.ErrProviderUnavailable
	default:
		return core.ErrProviderTransient
	}
}

func kindForCode(code string) error {
	switch code {
	case codeUnsupportedLanguage:
		return core.ErrUnsupportedLanguage
	case codeUnsupportedVoice:
		return core.ErrUnsupportedVoice
	case codeTextTooLong:
		return core.ErrTextTooLong
	default:
		return nil
	}
}
