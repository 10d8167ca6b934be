// Package speech transcribes recorded audio with the Google Speech-to-Text
// REST API.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnrecognized means the service understood the request but found no speech.
var ErrUnrecognized = errors.New("could not understand the audio")

type Config struct {
	BaseURL  string
	APIKey   string
	Language string
	Timeout  time.Duration
}

// Google implements domain.Transcriber.
type Google struct {
	cfg    Config
	client *http.Client
}

func NewGoogle(cfg Config) *Google {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://speech.googleapis.com/v1"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Google{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type recognizeConfig struct {
	Encoding     string `json:"encoding,omitempty"`
	LanguageCode string `json:"languageCode"`
}

type recognizeRequest struct {
	Config recognizeConfig `json:"config"`
	Audio  struct {
		Content string `json:"content"`
	} `json:"audio"`
}

// Transcribe returns the top transcript for audio. WAV and FLAC carry their
// own headers; other containers need an explicit encoding.
func (g *Google) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrUnrecognized
	}
	var body recognizeRequest
	body.Config = recognizeConfig{Encoding: encodingFor(mimeType), LanguageCode: g.cfg.Language}
	body.Audio.Content = base64.StdEncoding.EncodeToString(audio)
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	endpoint := g.cfg.BaseURL + "/speech:recognize"
	if g.cfg.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(g.cfg.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech recognition request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("speech recognition failed: %s", resp.Status)
	}
	var out struct {
		Results []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode speech response: %w", err)
	}
	var parts []string
	for _, r := range out.Results {
		if len(r.Alternatives) > 0 {
			if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
				parts = append(parts, t)
			}
		}
	}
	if len(parts) == 0 {
		return "", ErrUnrecognized
	}
	return strings.Join(parts, " "), nil
}

func encodingFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "ogg"):
		return "OGG_OPUS"
	case strings.Contains(mimeType, "webm"):
		return "WEBM_OPUS"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "MP3"
	default:
		return ""
	}
}
