package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valee-art/ALXIE/pkg/logger"
)

// Synthesizer turns text into speech, best-effort: a nil byte slice with a
// nil error means synthesis was unavailable and the caller should simply
// skip audio.
type Synthesizer interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// NoopSynthesizer never produces audio.
type NoopSynthesizer struct{}

func (NoopSynthesizer) Speak(ctx context.Context, text string) ([]byte, error) { return nil, nil }

// GeminiTTS calls the Gemini speech endpoint directly; langchaingo has no
// audio modality surface, so this is a plain REST client.
type GeminiTTS struct {
	apiKey string
	model  string
	client *http.Client
}

const ttsModel = "gemini-2.5-flash-preview-tts"

// NewGeminiTTS builds the speech client. With an empty key every Speak
// call resolves to no audio.
func NewGeminiTTS(apiKey string) *GeminiTTS {
	return &GeminiTTS{
		apiKey: apiKey,
		model:  ttsModel,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Speak renders up to the first 500 runes of text with a calm voice. Any
// failure is logged and reported as "no audio"; it never reaches the UI
// as an error.
func (g *GeminiTTS) Speak(ctx context.Context, text string) ([]byte, error) {
	if g.apiKey == "" || text == "" {
		return nil, nil
	}
	runes := []rune(text)
	if len(runes) > 500 {
		runes = runes[:500]
	}

	reqBody := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]string{{
				"text": "Bacakan ini dengan nada yang sangat tenang, hangat, dan menenangkan hati: " + string(runes),
			}},
		}},
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]any{
				"voiceConfig": map[string]any{
					"prebuiltVoiceConfig": map[string]string{"voiceName": "Kore"},
				},
			},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		logger.Warn("tts_request_failed", "error", err)
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		logger.Warn("tts_request_rejected", "status", resp.StatusCode, "body", string(body))
		return nil, nil
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					InlineData struct {
						Data string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		logger.Warn("tts_decode_failed", "error", err)
		return nil, nil
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, nil
	}
	audio, err := base64.StdEncoding.DecodeString(out.Candidates[0].Content.Parts[0].InlineData.Data)
	if err != nil {
		logger.Warn("tts_base64_decode_failed", "error", err)
		return nil, nil
	}
	return audio, nil
}
