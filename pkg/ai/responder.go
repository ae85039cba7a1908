// Package ai is the boundary to the generative capability. Every call
// resolves to usable text: provider failures are converted into
// pre-authored fallback messages and never reach the end user as errors.
package ai

import (
	"context"
	"strings"

	"github.com/valee-art/ALXIE/pkg/models"
)

// Response is what the support-response capability hands back.
type Response struct {
	Text string `json:"text"`
	// IsEmergency is computed locally from the user's raw message, never
	// trusted from the provider, so it is correct even in fallback mode.
	IsEmergency bool `json:"isEmergency"`
	// Fallback marks that Text is the pre-authored substitute rather than
	// provider output. The UI may use this to avoid presenting the text as
	// definitely AI-authored; the user sees a warm message either way.
	Fallback bool `json:"fallback,omitempty"`
}

// Responder produces empathic text. Implementations must always return a
// usable response; they never propagate provider errors.
type Responder interface {
	SupportResponse(ctx context.Context, message string, mood models.Mood, alias string) Response
	PersonaReply(ctx context.Context, persona string, history []models.ChatMessage, chatContext string) string
	DailyAffirmation(ctx context.Context) string
}

// Pre-authored texts, verbatim from the original service copy.
const (
	FallbackSupportText     = "Maaf, terjadi kendala saat memproses ceritamu. Aku tetap di sini mendengarkan kok."
	FallbackPersonaText     = "Aku masih di sini mendengarkan. Ceritakan lebih banyak kalau kamu mau ya."
	FallbackAffirmationText = "Kamu jauh lebih kuat dari apa yang kamu pikirkan."
	DefaultAffirmationText  = "Hari ini adalah langkah baru menuju ketenanganmu."

	// EmergencyNotice is appended to any response for a message flagged as
	// an emergency.
	EmergencyNotice = "Jika kamu berada di Indonesia dan membutuhkan bantuan segera, hubungi 119 ext. 8 (Layanan Kesehatan Jiwa)."
)

// emergencyKeywords flag messages that suggest self-harm intent. Matching
// is plain lowercase substring search over the raw user message.
var emergencyKeywords = []string{
	"bunuh diri",
	"mati",
	"akhiri hidup",
	"mengakhiri hidup",
	"menyakiti diri",
	"iris tangan",
	"loncat",
}

// IsEmergency reports whether the message contains a known self-harm
// keyword. Independent of whether any AI call succeeded.
func IsEmergency(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range emergencyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Static is the fully offline responder: it serves the pre-authored texts
// and is the fallback of last resort as well as the default in tests.
type Static struct{}

func (Static) SupportResponse(ctx context.Context, message string, mood models.Mood, alias string) Response {
	text := FallbackSupportText
	emergency := IsEmergency(message)
	if emergency {
		text = text + " " + EmergencyNotice
	}
	return Response{Text: text, IsEmergency: emergency, Fallback: true}
}

func (Static) PersonaReply(ctx context.Context, persona string, history []models.ChatMessage, chatContext string) string {
	return FallbackPersonaText
}

func (Static) DailyAffirmation(ctx context.Context) string {
	return DefaultAffirmationText
}
