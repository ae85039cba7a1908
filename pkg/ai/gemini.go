package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/schema"

	"github.com/valee-art/ALXIE/pkg/logger"
	"github.com/valee-art/ALXIE/pkg/models"
)

const supportSystemPrompt = `Kamu adalah ALXIE, ruang curhat dan dukungan emosional (peer support) untuk remaja, anak muda, dan orang tua.
PENTING:
1. Kamu BUKAN layanan medis, BUKAN psikolog profesional, dan BUKAN psikiater.
2. Platform ini dibuat sebagai bentuk peer support.
3. Respon harus menggunakan Bahasa Indonesia yang sangat hangat, empati, menenangkan, dan tidak menghakimi.
4. Jika pengguna memilih mood tertentu (misal: Marah), berikan validasi yang lebih kuat.
5. Jika pengguna terlihat ingin menyakiti diri sendiri, kamu HARUS menyertakan pesan: "Jika kamu berada di Indonesia dan membutuhkan bantuan segera, hubungi 119 ext. 8 (Layanan Kesehatan Jiwa)."
6. Fokuslah mendengarkan dan memvalidasi perasaan mereka sebagai teman sebaya (peer).`

const affirmationPrompt = "Berikan satu kalimat afirmasi positif pendek (maks 15 kata) dalam Bahasa Indonesia untuk seseorang yang sedang merasa lelah atau butuh semangat. Gunakan gaya bahasa yang hangat dan puitis."

const defaultModel = "gemini-1.5-flash"

// callTimeout bounds a single provider round-trip so callers never await
// indefinitely.
const callTimeout = 20 * time.Second

// GoogleAI is the Gemini-backed responder. All failure paths degrade to
// the Static responder's pre-authored texts.
type GoogleAI struct {
	llm      llms.Model
	retry    RetryConfig
	fallback Static
}

// NewGoogleAI builds the Gemini responder. An empty apiKey is an error;
// callers wanting a fully offline setup use Static directly.
func NewGoogleAI(ctx context.Context, apiKey, model string) (*GoogleAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("googleai: api key required")
	}
	if model == "" {
		model = defaultModel
	}
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("googleai: %w", err)
	}
	return &GoogleAI{llm: llm, retry: DefaultRetryConfig()}, nil
}

func (g *GoogleAI) SupportResponse(ctx context.Context, message string, mood models.Mood, alias string) Response {
	prompt := message
	if mood != "" {
		prompt = fmt.Sprintf("[Mood Pengguna saat ini: %s] %s", mood, message)
	}
	if alias != "" {
		prompt = fmt.Sprintf("[Nama panggilan: %s] %s", alias, prompt)
	}

	text, err := g.generate(ctx, supportSystemPrompt, prompt)
	emergency := IsEmergency(message)
	if err != nil {
		logger.Warn("ai_support_response_fallback", "error", err)
		resp := g.fallback.SupportResponse(ctx, message, mood, alias)
		return resp
	}
	if emergency && !strings.Contains(text, "119") {
		text = text + "\n\n" + EmergencyNotice
	}
	return Response{Text: text, IsEmergency: emergency}
}

func (g *GoogleAI) PersonaReply(ctx context.Context, persona string, history []models.ChatMessage, chatContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Kamu adalah %s, relawan pendengar di ALXIE. Balas sebagai teman sebaya: hangat, singkat, tidak menghakimi, dalam Bahasa Indonesia.\n", persona)
	if chatContext != "" {
		fmt.Fprintf(&b, "Konteks refleksi pengguna: %s\n", chatContext)
	}
	b.WriteString("Percakapan sejauh ini:\n")
	for _, msg := range history {
		who := "Pengguna"
		if msg.Role == models.RoleResponder {
			who = persona
		}
		fmt.Fprintf(&b, "%s: %s\n", who, msg.Text)
	}
	b.WriteString("Tulis balasan berikutnya sebagai " + persona + ".")

	text, err := g.generate(ctx, supportSystemPrompt, b.String())
	if err != nil {
		logger.Warn("ai_persona_reply_fallback", "persona", persona, "error", err)
		return g.fallback.PersonaReply(ctx, persona, history, chatContext)
	}
	return text
}

func (g *GoogleAI) DailyAffirmation(ctx context.Context) string {
	text, err := g.generate(ctx, "", affirmationPrompt)
	if err != nil {
		logger.Warn("ai_affirmation_fallback", "error", err)
		return FallbackAffirmationText
	}
	return strings.TrimSpace(text)
}

// generate runs one prompt through the model with retry/backoff and a
// bounded per-call timeout.
func (g *GoogleAI) generate(ctx context.Context, system, prompt string) (string, error) {
	var content []llms.MessageContent
	if system != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, system))
	}
	content = append(content, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	var out string
	err := retryWithBackoff(ctx, g.retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		resp, err := g.llm.GenerateContent(callCtx, content, llms.WithTemperature(0.8))
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
			return fmt.Errorf("empty model response")
		}
		out = strings.TrimSpace(resp.Choices[0].Content)
		return nil
	})
	return out, err
}
