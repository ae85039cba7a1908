package models

// Status tracks whether a human follow-up has been attached to an entry.
// The only transition is StatusNew -> StatusReplied, exactly once, when the
// first admin reply is written.
type Status string

const (
	StatusNew     Status = "new"
	StatusReplied Status = "replied"
)

// Mood is the optional mood tag attached to a vent.
type Mood string

const (
	MoodSad     Mood = "sad"
	MoodAnxious Mood = "anxious"
	MoodAngry   Mood = "angry"
	MoodTired   Mood = "tired"
	MoodLonely  Mood = "lonely"
)

// Valid reports whether m is one of the known moods. The empty mood is
// valid; it means the user skipped the mood picker.
func (m Mood) Valid() bool {
	switch m {
	case "", MoodSad, MoodAnxious, MoodAngry, MoodTired, MoodLonely:
		return true
	}
	return false
}

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleResponder Role = "responder"
)

// Vent is a free-text emotional disclosure. Timestamps are ns since epoch,
// assigned by the store at write time.
type Vent struct {
	ID             string `json:"id"`
	DisplayAlias   string `json:"displayAlias,omitempty"`
	Contact        string `json:"contact,omitempty"`
	Message        string `json:"message"`
	Mood           Mood   `json:"mood,omitempty"`
	ConsentGiven   bool   `json:"consentGiven"`
	CreatedAt      int64  `json:"createdAt,omitempty"`
	AIResponseText string `json:"aiResponseText,omitempty"`
	AdminReply     string `json:"adminReply,omitempty"`
	AdminRepliedAt int64  `json:"adminRepliedAt,omitempty"`
	Status         Status `json:"status"`
}

// ReflectionAnswers holds the three free-text prompts of a reflection.
type ReflectionAnswers struct {
	Trigger        string `json:"trigger"`
	LastOccurrence string `json:"lastOccurrence"`
	CopingStrategy string `json:"copingStrategy"`
}

// Reflection is a structured emotional self-assessment. EmotionLabel and
// EmotionGlyph come from the picker the user chose from, e.g. "Sedih"/"🌧️".
type Reflection struct {
	ID             string            `json:"id"`
	EmotionLabel   string            `json:"emotionLabel"`
	EmotionGlyph   string            `json:"emotionGlyph,omitempty"`
	Answers        ReflectionAnswers `json:"answers"`
	CreatedAt      int64             `json:"createdAt,omitempty"`
	AdminReply     string            `json:"adminReply,omitempty"`
	AdminRepliedAt int64             `json:"adminRepliedAt,omitempty"`
	Status         Status            `json:"status"`
}

// CommunityMessage is a public, reaction-able encouragement note on the
// hope board. Reaction keys appear lazily on first use and only increment.
type CommunityMessage struct {
	ID          string         `json:"id"`
	SenderLabel string         `json:"senderLabel"`
	Text        string         `json:"text"`
	Glyph       string         `json:"glyph,omitempty"`
	CreatedAt   int64          `json:"createdAt,omitempty"`
	Reactions   map[string]int `json:"reactions"`
}

// ChatMessage is one entry of a chat session. Sessions are append-only;
// messages are never edited or removed.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// ChatSession is an ad-hoc conversation with a simulated volunteer
// persona. Its ID correlates 1:1 with a reflection or other context the
// caller supplies. LastUpdatedAt feeds the admin-side recency sort.
type ChatSession struct {
	ID            string        `json:"id"`
	PersonaName   string        `json:"personaName"`
	PersonaGlyph  string        `json:"personaGlyph,omitempty"`
	Context       string        `json:"context,omitempty"`
	Messages      []ChatMessage `json:"messages"`
	CreatedAt     int64         `json:"createdAt,omitempty"`
	LastUpdatedAt int64         `json:"lastUpdatedAt,omitempty"`
}

// ContactEvent records one outward contact initiation toward a persona,
// used only for the contact-frequency statistic.
type ContactEvent struct {
	ID        string `json:"id"`
	Persona   string `json:"persona"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// DefaultSenderLabel is used when a community post omits a sender.
const DefaultSenderLabel = "Anonim"

// GlyphPalette is the fixed set of decorative glyphs a community post is
// stamped with at creation.
var GlyphPalette = []string{"🌟", "🌱", "☀️", "🌊", "🌈", "🕊️", "🫂"}

// Persona is a named simulated listener identity.
type Persona struct {
	Name  string `json:"name"`
	Glyph string `json:"glyph"`
}

// Personas is the fixed table of volunteer personas a chat session can be
// assigned. The first entry is the default.
var Personas = []Persona{
	{Name: "Admin ALXIE", Glyph: "🧿"},
	{Name: "Kak Rara", Glyph: "🌷"},
	{Name: "Bang Dika", Glyph: "🌊"},
	{Name: "Kak Sena", Glyph: "🍃"},
}
