// Package ops holds the mutation operations. Each is one logical
// read-modify-write against the store adapter; validation failures are
// typed results, never panics, and no partial write escapes a failed
// precondition.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/valee-art/ALXIE/pkg/ai"
	"github.com/valee-art/ALXIE/pkg/logger"
	"github.com/valee-art/ALXIE/pkg/models"
	"github.com/valee-art/ALXIE/pkg/store"
)

// Service executes mutations against an injected adapter. Views never
// touch storage directly; they go through here and read through the
// subscription broker.
type Service struct {
	store store.Adapter
	ai    ai.Responder
	now   func() time.Time
}

// New builds a Service. The responder is required; use ai.Static{} for a
// fully offline setup.
func New(adapter store.Adapter, responder ai.Responder) *Service {
	return &Service{store: adapter, ai: responder, now: time.Now}
}

// Store exposes the underlying adapter for read paths.
func (s *Service) Store() store.Adapter { return s.store }

// VentInput carries the user-supplied fields of a vent submission.
type VentInput struct {
	DisplayAlias string      `json:"displayAlias"`
	Contact      string      `json:"contact"`
	Message      string      `json:"message"`
	Mood         models.Mood `json:"mood"`
	ConsentGiven bool        `json:"consentGiven"`
}

// SubmitVent persists the vent, then enriches it with the AI response.
// The append is complete before enrichment starts; an enrichment failure
// never rolls the vent back. The returned response carries the emergency
// flag the UI needs.
func (s *Service) SubmitVent(ctx context.Context, in VentInput) (*models.Vent, ai.Response, error) {
	if !in.ConsentGiven {
		return nil, ai.Response{}, validationErr("consentGiven", "consent is required before anything is stored")
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, ai.Response{}, validationErr("message", "must not be empty")
	}
	if !in.Mood.Valid() {
		return nil, ai.Response{}, validationErr("mood", "unknown mood")
	}

	vent := models.Vent{
		DisplayAlias: in.DisplayAlias,
		Contact:      in.Contact,
		Message:      in.Message,
		Mood:         in.Mood,
		ConsentGiven: true,
		Status:       models.StatusNew,
	}
	payload, err := json.Marshal(vent)
	if err != nil {
		return nil, ai.Response{}, err
	}
	meta, err := s.store.Append(ctx, store.KindVent, payload)
	if err != nil {
		return nil, ai.Response{}, err
	}
	vent.ID = meta.ID
	vent.CreatedAt = meta.CreatedAt

	resp := s.ai.SupportResponse(ctx, in.Message, in.Mood, in.DisplayAlias)
	vent.AIResponseText = resp.Text

	_, err = s.store.Update(ctx, store.KindVent, meta.ID, patchFields(map[string]any{
		"aiResponseText": resp.Text,
	}))
	if err != nil {
		// The vent exists; only the enrichment write failed.
		logger.Warn("vent_ai_attach_failed", "id", meta.ID, "error", err)
	}
	return &vent, resp, nil
}

// ReflectionInput carries the user-supplied fields of a reflection.
type ReflectionInput struct {
	EmotionLabel string                   `json:"emotionLabel"`
	EmotionGlyph string                   `json:"emotionGlyph"`
	Answers      models.ReflectionAnswers `json:"answers"`
}

// SubmitReflection persists a structured self-assessment. No AI call is
// made here; evaluation happens on demand over the full history.
func (s *Service) SubmitReflection(ctx context.Context, in ReflectionInput) (*models.Reflection, error) {
	if strings.TrimSpace(in.EmotionLabel) == "" {
		return nil, validationErr("emotionLabel", "must not be empty")
	}
	refl := models.Reflection{
		EmotionLabel: in.EmotionLabel,
		EmotionGlyph: in.EmotionGlyph,
		Answers:      in.Answers,
		Status:       models.StatusNew,
	}
	payload, err := json.Marshal(refl)
	if err != nil {
		return nil, err
	}
	meta, err := s.store.Append(ctx, store.KindReflection, payload)
	if err != nil {
		return nil, err
	}
	refl.ID = meta.ID
	refl.CreatedAt = meta.CreatedAt
	return &refl, nil
}

// SubmitAdminReply attaches a human follow-up to a vent or reflection.
// Safe to call twice: last write wins on the text, the new->replied
// transition happens only once because status is already replied.
func (s *Service) SubmitAdminReply(ctx context.Context, kind store.Kind, id, text string) (json.RawMessage, error) {
	if kind != store.KindVent && kind != store.KindReflection {
		return nil, validationErr("kind", "admin replies attach to vents and reflections only")
	}
	if strings.TrimSpace(text) == "" {
		return nil, validationErr("text", "must not be empty")
	}
	return s.store.Update(ctx, kind, id, patchFields(map[string]any{
		"adminReply":     text,
		"adminRepliedAt": s.now().UTC().UnixNano(),
		"status":         models.StatusReplied,
	}))
}

// PostCommunityMessage pins a note to the hope board with a random glyph
// from the fixed palette and an empty reaction mapping.
func (s *Service) PostCommunityMessage(ctx context.Context, senderLabel, text string) (*models.CommunityMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, validationErr("text", "must not be empty")
	}
	if senderLabel == "" {
		senderLabel = models.DefaultSenderLabel
	}
	msg := models.CommunityMessage{
		SenderLabel: senderLabel,
		Text:        text,
		Glyph:       models.GlyphPalette[rand.Intn(len(models.GlyphPalette))],
		Reactions:   map[string]int{},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	meta, err := s.store.Append(ctx, store.KindCommunity, payload)
	if err != nil {
		return nil, err
	}
	msg.ID = meta.ID
	msg.CreatedAt = meta.CreatedAt
	return &msg, nil
}

// AddReaction increments one reaction counter. The increment is computed
// against the freshest stored value inside Update, so near-simultaneous
// reactions all land.
func (s *Service) AddReaction(ctx context.Context, messageID, symbol string) (*models.CommunityMessage, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, validationErr("symbol", "must not be empty")
	}
	raw, err := s.store.Update(ctx, store.KindCommunity, messageID, func(current json.RawMessage) (json.RawMessage, error) {
		var msg models.CommunityMessage
		if err := json.Unmarshal(current, &msg); err != nil {
			return nil, err
		}
		if msg.Reactions == nil {
			msg.Reactions = map[string]int{}
		}
		msg.Reactions[symbol]++
		return json.Marshal(msg)
	})
	if err != nil {
		return nil, err
	}
	var msg models.CommunityMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ChatAppendInput describes one message headed into a session.
type ChatAppendInput struct {
	SessionID string      `json:"sessionId"`
	Role      models.Role `json:"role"`
	Text      string      `json:"text"`
	// Context seeds the persona when the session is created lazily.
	Context string `json:"context"`
	// SuppressAutoReply is set for admin-authored messages so they do not
	// trigger the simulated responder.
	SuppressAutoReply bool `json:"suppressAutoReply"`
}

// AppendChatMessage appends to a session, creating it lazily with a
// randomly assigned persona on first use. A user message additionally
// triggers a persona-styled auto-reply unless suppressed.
func (s *Service) AppendChatMessage(ctx context.Context, in ChatAppendInput) (*models.ChatSession, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return nil, validationErr("sessionId", "must not be empty")
	}
	if in.Role != models.RoleUser && in.Role != models.RoleResponder {
		return nil, validationErr("role", "must be user or responder")
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, validationErr("text", "must not be empty")
	}

	if _, err := s.store.Get(ctx, store.KindChat, in.SessionID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		persona := models.Personas[rand.Intn(len(models.Personas))]
		session := models.ChatSession{
			ID:           in.SessionID,
			PersonaName:  persona.Name,
			PersonaGlyph: persona.Glyph,
			Context:      in.Context,
			Messages:     []models.ChatMessage{},
		}
		payload, err := json.Marshal(session)
		if err != nil {
			return nil, err
		}
		// ErrExists means another caller created the session between our
		// Get and this Append; their session wins and we just append to it.
		if _, err := s.store.Append(ctx, store.KindChat, payload); err != nil && !errors.Is(err, store.ErrExists) {
			return nil, err
		}
	}

	session, err := s.appendToSession(ctx, in.SessionID, models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      in.Role,
		Text:      in.Text,
		Timestamp: s.now().UTC().UnixNano(),
	})
	if err != nil {
		return nil, err
	}

	if in.Role == models.RoleUser && !in.SuppressAutoReply {
		reply := s.ai.PersonaReply(ctx, session.PersonaName, session.Messages, session.Context)
		session, err = s.appendToSession(ctx, in.SessionID, models.ChatMessage{
			ID:        uuid.NewString(),
			Role:      models.RoleResponder,
			Text:      reply,
			Timestamp: s.now().UTC().UnixNano(),
		})
		if err != nil {
			return nil, err
		}
	}
	return session, nil
}

func (s *Service) appendToSession(ctx context.Context, sessionID string, msg models.ChatMessage) (*models.ChatSession, error) {
	raw, err := s.store.Update(ctx, store.KindChat, sessionID, func(current json.RawMessage) (json.RawMessage, error) {
		var session models.ChatSession
		if err := json.Unmarshal(current, &session); err != nil {
			return nil, err
		}
		session.Messages = append(session.Messages, msg)
		session.LastUpdatedAt = msg.Timestamp
		return json.Marshal(session)
	})
	if err != nil {
		return nil, err
	}
	var session models.ChatSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RecordContact logs one outward contact initiation toward a persona.
func (s *Service) RecordContact(ctx context.Context, persona string) error {
	if strings.TrimSpace(persona) == "" {
		return validationErr("persona", "must not be empty")
	}
	payload, err := json.Marshal(models.ContactEvent{Persona: persona})
	if err != nil {
		return err
	}
	_, err = s.store.Append(ctx, store.KindContact, payload)
	return err
}

// ListChatSessions returns all sessions, most recently active first, for
// the admin dashboard.
func (s *Service) ListChatSessions(ctx context.Context) ([]models.ChatSession, error) {
	raw, err := s.store.List(ctx, store.KindChat)
	if err != nil {
		return nil, err
	}
	sessions := make([]models.ChatSession, 0, len(raw))
	for _, r := range raw {
		var session models.ChatSession
		if err := json.Unmarshal(r, &session); err != nil {
			logger.Warn("chat_session_decode_failed", "error", err)
			continue
		}
		sessions = append(sessions, session)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastUpdatedAt > sessions[j].LastUpdatedAt
	})
	return sessions, nil
}

// ClearAll irreversibly empties a collection. Only ever invoked by an
// explicit user-confirmed maintenance action.
func (s *Service) ClearAll(ctx context.Context, kind store.Kind) error {
	if !kind.Valid() {
		return validationErr("kind", "unknown kind")
	}
	return s.store.Clear(ctx, kind)
}

// patchFields merges the given fields into a record without disturbing
// any other field's bytes.
func patchFields(fields map[string]any) store.MutateFunc {
	return func(current json.RawMessage) (json.RawMessage, error) {
		var rec map[string]json.RawMessage
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, err
		}
		for k, v := range fields {
			switch t := v.(type) {
			case int64:
				rec[k] = json.RawMessage(strconv.FormatInt(t, 10))
			default:
				b, err := json.Marshal(v)
				if err != nil {
					return nil, err
				}
				rec[k] = b
			}
		}
		return json.Marshal(rec)
	}
}
