package ops

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/valee-art/ALXIE/pkg/ai"
	"github.com/valee-art/ALXIE/pkg/models"
	"github.com/valee-art/ALXIE/pkg/store"
)

// scriptedResponder records calls and returns canned text, standing in for
// the provider-backed responder.
type scriptedResponder struct {
	mu           sync.Mutex
	supportCalls int
	personaCalls int
	supportText  string
	personaText  string
}

func (r *scriptedResponder) SupportResponse(ctx context.Context, message string, mood models.Mood, alias string) ai.Response {
	r.mu.Lock()
	r.supportCalls++
	r.mu.Unlock()
	text := r.supportText
	emergency := ai.IsEmergency(message)
	if emergency {
		text += " " + ai.EmergencyNotice
	}
	return ai.Response{Text: text, IsEmergency: emergency}
}

func (r *scriptedResponder) PersonaReply(ctx context.Context, persona string, history []models.ChatMessage, chatContext string) string {
	r.mu.Lock()
	r.personaCalls++
	r.mu.Unlock()
	return r.personaText
}

func (r *scriptedResponder) DailyAffirmation(ctx context.Context) string { return "ok" }

func newService(t *testing.T) (*Service, *scriptedResponder, store.Adapter) {
	t.Helper()
	adapter := store.NewMemory()
	responder := &scriptedResponder{supportText: "aku dengar kamu", personaText: "cerita lagi ya"}
	return New(adapter, responder), responder, adapter
}

func TestSubmitVentRequiresConsent(t *testing.T) {
	svc, responder, adapter := newService(t)
	_, _, err := svc.SubmitVent(context.Background(), VentInput{Message: "halo", ConsentGiven: false})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if responder.supportCalls != 0 {
		t.Fatalf("responder called despite missing consent")
	}
	recs, _ := adapter.List(context.Background(), store.KindVent)
	if len(recs) != 0 {
		t.Fatalf("vent stored despite missing consent")
	}
}

func TestSubmitVentRejectsEmptyMessage(t *testing.T) {
	svc, _, _ := newService(t)
	_, _, err := svc.SubmitVent(context.Background(), VentInput{Message: "   ", ConsentGiven: true})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitVentPersistsAndEnriches(t *testing.T) {
	svc, _, adapter := newService(t)
	ctx := context.Background()

	vent, resp, err := svc.SubmitVent(ctx, VentInput{
		DisplayAlias: "Bintang",
		Message:      "aku capek sekali",
		Mood:         models.MoodTired,
		ConsentGiven: true,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if vent.ID == "" || vent.CreatedAt == 0 {
		t.Fatalf("identity not assigned")
	}
	if vent.Status != models.StatusNew {
		t.Fatalf("expected status new, got %q", vent.Status)
	}
	if resp.IsEmergency {
		t.Fatalf("unexpected emergency flag")
	}

	raw, err := adapter.Get(ctx, store.KindVent, vent.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var stored models.Vent
	_ = json.Unmarshal(raw, &stored)
	if stored.AIResponseText != "aku dengar kamu" {
		t.Fatalf("ai text not attached to stored vent: %q", stored.AIResponseText)
	}
}

func TestSubmitVentEmergencyDetection(t *testing.T) {
	svc, _, _ := newService(t)
	_, resp, err := svc.SubmitVent(context.Background(), VentInput{
		Message:      "aku ingin mengakhiri hidup",
		ConsentGiven: true,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !resp.IsEmergency {
		t.Fatalf("emergency message not flagged")
	}
}

func TestSubmitReflection(t *testing.T) {
	svc, _, adapter := newService(t)
	ctx := context.Background()

	if _, err := svc.SubmitReflection(ctx, ReflectionInput{EmotionLabel: " "}); !IsValidation(err) {
		t.Fatalf("expected validation error for empty label, got %v", err)
	}

	refl, err := svc.SubmitReflection(ctx, ReflectionInput{
		EmotionLabel: "Sedih",
		EmotionGlyph: "🌧️",
		Answers: models.ReflectionAnswers{
			Trigger:        "ujian",
			LastOccurrence: "kemarin",
			CopingStrategy: "jalan kaki",
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if refl.ID == "" || refl.CreatedAt == 0 || refl.Status != models.StatusNew {
		t.Fatalf("identity or status wrong: %+v", refl)
	}

	raw, err := adapter.Get(ctx, store.KindReflection, refl.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var stored models.Reflection
	_ = json.Unmarshal(raw, &stored)
	if stored.Answers.Trigger != "ujian" {
		t.Fatalf("answers not persisted: %+v", stored.Answers)
	}
}

// End-to-end: a subscriber watches a vent arrive, get its support text, and
// receive a human reply, with status transitioning exactly once.
func TestVentLifecycleObservedBySubscriber(t *testing.T) {
	svc, _, adapter := newService(t)
	ctx := context.Background()

	var snapshots [][]json.RawMessage
	cancel, err := adapter.Subscribe(ctx, store.KindVent, func(records []json.RawMessage) {
		snapshots = append(snapshots, records)
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	vent, resp, err := svc.SubmitVent(ctx, VentInput{
		Message: "aku butuh cerita", Mood: models.MoodLonely, ConsentGiven: true,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if resp.Text == "" {
		t.Fatalf("support response must always carry text")
	}

	if _, err := svc.SubmitAdminReply(ctx, store.KindVent, vent.ID, "aku dengar kamu"); err != nil {
		t.Fatalf("reply failed: %v", err)
	}

	last := snapshots[len(snapshots)-1]
	if len(last) != 1 {
		t.Fatalf("expected 1 vent in final snapshot, got %d", len(last))
	}
	var final models.Vent
	_ = json.Unmarshal(last[0], &final)
	if final.Status != models.StatusReplied || final.AdminReply == "" || final.AIResponseText == "" {
		t.Fatalf("final state incomplete: %+v", final)
	}

	replied := 0
	for _, snap := range snapshots {
		if len(snap) == 0 {
			continue
		}
		var v models.Vent
		_ = json.Unmarshal(snap[0], &v)
		if v.Status == models.StatusReplied {
			replied++
		}
	}
	if replied != 1 {
		t.Fatalf("expected exactly one snapshot with replied status, got %d", replied)
	}
}

func TestSubmitAdminReplyTransitionsStatus(t *testing.T) {
	svc, _, adapter := newService(t)
	ctx := context.Background()

	vent, _, err := svc.SubmitVent(ctx, VentInput{Message: "sedih", ConsentGiven: true})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	raw, err := svc.SubmitAdminReply(ctx, store.KindVent, vent.ID, "kami mendengarmu")
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	var replied models.Vent
	_ = json.Unmarshal(raw, &replied)
	if replied.Status != models.StatusReplied {
		t.Fatalf("status not transitioned: %q", replied.Status)
	}
	if replied.AdminReply != "kami mendengarmu" || replied.AdminRepliedAt == 0 {
		t.Fatalf("reply fields not set: %+v", replied)
	}

	// Second reply: last write wins, status stays replied.
	raw, err = svc.SubmitAdminReply(ctx, store.KindVent, vent.ID, "tambahan")
	if err != nil {
		t.Fatalf("second reply failed: %v", err)
	}
	_ = json.Unmarshal(raw, &replied)
	if replied.AdminReply != "tambahan" || replied.Status != models.StatusReplied {
		t.Fatalf("second reply not applied: %+v", replied)
	}

	// Original message bytes are untouched by the patch.
	stored, _ := adapter.Get(ctx, store.KindVent, vent.ID)
	var v models.Vent
	_ = json.Unmarshal(stored, &v)
	if v.Message != "sedih" {
		t.Fatalf("patch disturbed unrelated field: %q", v.Message)
	}
}

func TestSubmitAdminReplyValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.SubmitAdminReply(ctx, store.KindCommunity, "x", "hi"); !IsValidation(err) {
		t.Fatalf("expected validation error for kind, got %v", err)
	}
	if _, err := svc.SubmitAdminReply(ctx, store.KindVent, "x", "  "); !IsValidation(err) {
		t.Fatalf("expected validation error for empty text, got %v", err)
	}
	if _, err := svc.SubmitAdminReply(ctx, store.KindVent, "missing", "hi"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostCommunityMessageDefaults(t *testing.T) {
	svc, _, _ := newService(t)
	msg, err := svc.PostCommunityMessage(context.Background(), "", "kamu tidak sendiri")
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if msg.SenderLabel != models.DefaultSenderLabel {
		t.Fatalf("expected default sender, got %q", msg.SenderLabel)
	}
	found := false
	for _, g := range models.GlyphPalette {
		if msg.Glyph == g {
			found = true
		}
	}
	if !found {
		t.Fatalf("glyph %q not from palette", msg.Glyph)
	}
	if msg.Reactions == nil || len(msg.Reactions) != 0 {
		t.Fatalf("expected empty reactions mapping, got %v", msg.Reactions)
	}
}

func TestAddReactionAccumulates(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	msg, err := svc.PostCommunityMessage(ctx, "Anonim", "semangat")
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.AddReaction(ctx, msg.ID, "❤️")
		}()
	}
	wg.Wait()

	got, err := svc.AddReaction(ctx, msg.ID, "🫂")
	if err != nil {
		t.Fatalf("reaction failed: %v", err)
	}
	if got.Reactions["❤️"] != 20 {
		t.Fatalf("lost updates: expected 20, got %d", got.Reactions["❤️"])
	}
	if got.Reactions["🫂"] != 1 {
		t.Fatalf("lazy reaction key missing: %v", got.Reactions)
	}
}

func TestAddReactionMissingMessage(t *testing.T) {
	svc, _, _ := newService(t)
	if _, err := svc.AddReaction(context.Background(), "missing", "❤️"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendChatMessageCreatesSessionLazily(t *testing.T) {
	svc, responder, _ := newService(t)
	ctx := context.Background()

	session, err := svc.AppendChatMessage(ctx, ChatAppendInput{
		SessionID: "session-1",
		Role:      models.RoleUser,
		Text:      "halo kak",
		Context:   "refleksi: Sedih",
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if session.PersonaName == "" || session.PersonaGlyph == "" {
		t.Fatalf("persona not assigned on lazy create")
	}
	known := false
	for _, p := range models.Personas {
		if p.Name == session.PersonaName {
			known = true
		}
	}
	if !known {
		t.Fatalf("persona %q not from the fixed table", session.PersonaName)
	}
	if len(session.Messages) != 2 {
		t.Fatalf("expected user message plus auto-reply, got %d", len(session.Messages))
	}
	if session.Messages[0].Role != models.RoleUser || session.Messages[1].Role != models.RoleResponder {
		t.Fatalf("unexpected roles: %+v", session.Messages)
	}
	if session.Messages[1].Text != "cerita lagi ya" {
		t.Fatalf("auto-reply text mismatch: %q", session.Messages[1].Text)
	}
	if responder.personaCalls != 1 {
		t.Fatalf("expected 1 persona call, got %d", responder.personaCalls)
	}
	if session.LastUpdatedAt == 0 {
		t.Fatalf("lastUpdatedAt not maintained")
	}
}

func TestAppendChatMessageSuppressAutoReply(t *testing.T) {
	svc, responder, _ := newService(t)
	ctx := context.Background()

	session, err := svc.AppendChatMessage(ctx, ChatAppendInput{
		SessionID:         "session-2",
		Role:              models.RoleResponder,
		Text:              "halo, aku di sini",
		SuppressAutoReply: true,
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if len(session.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(session.Messages))
	}
	if responder.personaCalls != 0 {
		t.Fatalf("auto-reply fired for responder message")
	}

	// Same session again: persona is stable, messages accumulate.
	again, err := svc.AppendChatMessage(ctx, ChatAppendInput{
		SessionID: "session-2",
		Role:      models.RoleUser,
		Text:      "terima kasih",
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if again.PersonaName != session.PersonaName {
		t.Fatalf("persona changed across appends")
	}
	if len(again.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(again.Messages))
	}
}

// Two tabs sending the first message to the same session id must converge
// on one session holding both messages, never two records under one id.
func TestAppendChatMessageConcurrentFirstMessages(t *testing.T) {
	svc, _, adapter := newService(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AppendChatMessage(ctx, ChatAppendInput{
				SessionID:         "sess-race",
				Role:              models.RoleUser,
				Text:              "halo",
				SuppressAutoReply: true,
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d failed: %v", i, err)
		}
	}

	recs, err := adapter.List(ctx, store.KindChat)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected exactly 1 session record, got %d", len(recs))
	}
	var session models.ChatSession
	if err := json.Unmarshal(recs[0], &session); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if session.ID != "sess-race" {
		t.Fatalf("unexpected session id %q", session.ID)
	}
	if len(session.Messages) != writers {
		t.Fatalf("stranded messages: expected %d, got %d", writers, len(session.Messages))
	}
}

func TestListChatSessionsRecencyOrder(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if _, err := svc.AppendChatMessage(ctx, ChatAppendInput{
			SessionID: id, Role: models.RoleUser, Text: "halo", SuppressAutoReply: true,
		}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	// Touch s1 again so it becomes the most recent.
	if _, err := svc.AppendChatMessage(ctx, ChatAppendInput{
		SessionID: "s1", Role: models.RoleUser, Text: "lagi", SuppressAutoReply: true,
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	sessions, err := svc.ListChatSessions(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "s1" {
		t.Fatalf("expected most recently active first, got %q", sessions[0].ID)
	}
}

func TestRecordContactAndClearAll(t *testing.T) {
	svc, _, adapter := newService(t)
	ctx := context.Background()

	if err := svc.RecordContact(ctx, "Kak Rara"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := svc.RecordContact(ctx, ""); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	recs, _ := adapter.List(ctx, store.KindContact)
	if len(recs) != 1 {
		t.Fatalf("expected 1 contact event, got %d", len(recs))
	}

	if err := svc.ClearAll(ctx, store.KindContact); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	recs, _ = adapter.List(ctx, store.KindContact)
	if len(recs) != 0 {
		t.Fatalf("clear left records")
	}
	if err := svc.ClearAll(ctx, store.Kind("bogus")); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}
}
