package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"shopassist/internal/domain"
)

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Gemini{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, model: cfg.Model, client: &http.Client{Timeout: cfg.Timeout}}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// Generate starts a chat seeded with history and sends prompt as the next
// user message.
func (g *Gemini) Generate(ctx context.Context, history []domain.Turn, prompt string) (string, error) {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, t := range history {
		role := domain.RoleUser
		if t.Role == domain.RoleModel {
			role = domain.RoleModel
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: t.Parts}}})
	}
	contents = append(contents, geminiContent{Role: domain.RoleUser, Parts: []geminiPart{{Text: prompt}}})

	data, err := json.Marshal(geminiRequest{Contents: contents})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini generateContent failed: %s", resp.Status)
	}
	var result struct {
		Candidates []struct {
			Content struct {
				Parts []geminiPart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
		return result.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("gemini: no response")
}
