// Package client provides an HTTP client for the voice-clone service, used
// by the bundled CLI and by other services that consume synthesized speech.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// API paths.
const (
	apiHealth  = "/health"
	apiVoices  = "/voices"
	apiUse     = "/use"
	apiTTS     = "/tts"
	apiClone   = "/clone"
	apiExtract = "/extract-audio"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Static errors.
var (
	// ErrEmptyText indicates a synthesis call without text.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrEmptyAudio indicates the service returned no audio bytes.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// Client talks to a running voice-clone service instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Health is the decoded /health response.
type Health struct {
	Status      string  `json:"status"`
	ModelLoaded bool    `json:"model_loaded"`
	Device      string  `json:"device"`
	VRAMUsedGB  float64 `json:"vram_used_gb"`
	ActiveVoice string  `json:"active_voice"`
	Voices      int     `json:"voices"`
}

// VoiceSummary mirrors one entry of the /voices listing.
type VoiceSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	AudioFiles  int    `json:"audio_files"`
	HasPreset   bool   `json:"has_preset"`
	Created     string `json:"created"`
}

// VoicesResponse is the decoded /voices response.
type VoicesResponse struct {
	Voices []VoiceSummary `json:"voices"`
	Active string         `json:"active"`
}

// SynthesizeRequest is the /tts request payload.
type SynthesizeRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

// CloneRequest describes a voice-clone upload.
type CloneRequest struct {
	Name        string
	Description string
	Language    string
	AudioPath   string
}

// New creates a client for the service at baseURL. The timeout bounds each
// request end to end; synthesis can take minutes on CPU, so callers should
// size it generously.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Health fetches the service health snapshot.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create health request: %w", reqErr)
	}

	var health Health

	doErr := c.doJSON(req, &health)
	if doErr != nil {
		return nil, doErr
	}

	return &health, nil
}

// Voices lists the stored voice profiles and the active selection.
func (c *Client) Voices(ctx context.Context) (*VoicesResponse, error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiVoices, http.NoBody)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", reqErr)
	}

	var voices VoicesResponse

	doErr := c.doJSON(req, &voices)
	if doErr != nil {
		return nil, doErr
	}

	return &voices, nil
}

// Use switches the service's active voice.
func (c *Client) Use(ctx context.Context, voice string) error {
	payload, marshalErr := json.Marshal(map[string]string{"voice": voice})
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal use request: %w", marshalErr)
	}

	req, reqErr := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+apiUse, bytes.NewReader(payload))
	if reqErr != nil {
		return fmt.Errorf("failed to create use request: %w", reqErr)
	}

	req.Header.Set(headerContentType, contentTypeJSON)

	return c.doJSON(req, nil)
}

// DeleteVoice removes a stored voice profile.
func (c *Client) DeleteVoice(ctx context.Context, voice string) error {
	req, reqErr := http.NewRequestWithContext(
		ctx, http.MethodDelete, c.baseURL+apiVoices+"/"+voice, http.NoBody)
	if reqErr != nil {
		return fmt.Errorf("failed to create delete request: %w", reqErr)
	}

	return c.doJSON(req, nil)
}

// Synthesize requests speech for the text and returns the WAV bytes.
func (c *Client) Synthesize(ctx context.Context, synthReq SynthesizeRequest) ([]byte, error) {
	if synthReq.Text == "" {
		return nil, ErrEmptyText
	}

	payload, marshalErr := json.Marshal(synthReq)
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", marshalErr)
	}

	req, reqErr := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+apiTTS, bytes.NewReader(payload))
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", reqErr)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set("Accept", contentTypeWAV)

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf("failed to reach service at %s: %w", c.baseURL, doErr)
	}

	defer closeQuietly(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	audioData, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", readErr)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// Clone uploads reference audio to create (or overwrite) a voice profile.
func (c *Client) Clone(ctx context.Context, cloneReq CloneRequest) error {
	fields := map[string]string{
		"name":        cloneReq.Name,
		"description": cloneReq.Description,
		"language":    cloneReq.Language,
	}

	return c.uploadMultipart(ctx, apiClone, "audio", cloneReq.AudioPath, fields)
}

// ExtractAudio uploads a media file and carves a reference segment from it.
func (c *Client) ExtractAudio(
	ctx context.Context,
	name, mediaPath string,
	start, duration float64,
) error {
	fields := map[string]string{
		"voice_name": name,
	}

	if start > 0 {
		fields["start_time"] = fmt.Sprintf("%g", start)
	}

	if duration > 0 {
		fields["duration"] = fmt.Sprintf("%g", duration)
	}

	return c.uploadMultipart(ctx, apiExtract, "video", mediaPath, fields)
}

// uploadMultipart streams a file plus form fields to an endpoint.
func (c *Client) uploadMultipart(
	ctx context.Context,
	path, fileField, filePath string,
	fields map[string]string,
) error {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	for key, value := range fields {
		if value == "" {
			continue
		}

		fieldErr := writer.WriteField(key, value)
		if fieldErr != nil {
			return fmt.Errorf("failed to write form field %s: %w", key, fieldErr)
		}
	}

	file, openErr := os.Open(filePath)
	if openErr != nil {
		return fmt.Errorf("failed to open upload %s: %w", filePath, openErr)
	}

	defer closeQuietly(file)

	part, partErr := writer.CreateFormFile(fileField, filepath.Base(filePath))
	if partErr != nil {
		return fmt.Errorf("failed to create form file: %w", partErr)
	}

	_, copyErr := io.Copy(part, file)
	if copyErr != nil {
		return fmt.Errorf("failed to copy upload into form: %w", copyErr)
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to finalize multipart form: %w", closeErr)
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if reqErr != nil {
		return fmt.Errorf("failed to create upload request: %w", reqErr)
	}

	req.Header.Set(headerContentType, writer.FormDataContentType())

	return c.doJSON(req, nil)
}

// doJSON executes a request expecting a JSON response, decoding it into out
// when non-nil.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return fmt.Errorf("failed to reach service at %s: %w", c.baseURL, doErr)
	}

	defer closeQuietly(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}

	decodeErr := json.NewDecoder(resp.Body).Decode(out)
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	return nil
}

// parseErrorResponse decodes the service's uniform error body, falling back
// to the raw response when it is not JSON.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errorResp struct {
		Error string `json:"error"`
	}

	decodeErr := json.NewDecoder(resp.Body).Decode(&errorResp)
	if decodeErr == nil && errorResp.Error != "" {
		return fmt.Errorf("service error (%s): %s", resp.Status, errorResp.Error)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf("service returned non-OK status: %s, body: %s", resp.Status, string(body))
}

func closeQuietly(closer io.Closer) {
	_ = closer.Close()
}
