package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/valee-art/ALXIE/pkg/adminlock"
	"github.com/valee-art/ALXIE/pkg/ai"
	"github.com/valee-art/ALXIE/pkg/logger"
	"github.com/valee-art/ALXIE/pkg/ops"
	"github.com/valee-art/ALXIE/pkg/stats"
	"github.com/valee-art/ALXIE/pkg/store"
	"github.com/valee-art/ALXIE/pkg/utils"
)

// createVent handles POST /v1/vents. The response carries the stored vent
// plus the support response, including the emergency flag.
func (s *Server) createVent(w http.ResponseWriter, r *http.Request) {
	var in ops.VentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	vent, resp, err := s.Ops.SubmitVent(r.Context(), in)
	if err != nil {
		writeOpError(w, err)
		return
	}
	logger.Info("vent_created", "id", vent.ID, "emergency", resp.IsEmergency)
	_ = utils.JSONWrite(w, http.StatusCreated, struct {
		Vent     any         `json:"vent"`
		Response ai.Response `json:"response"`
	}{Vent: vent, Response: resp})
}

// createReflection handles POST /v1/reflections.
func (s *Server) createReflection(w http.ResponseWriter, r *http.Request) {
	var in ops.ReflectionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	refl, err := s.Ops.SubmitReflection(r.Context(), in)
	if err != nil {
		writeOpError(w, err)
		return
	}
	logger.Info("reflection_created", "id", refl.ID)
	_ = utils.JSONWrite(w, http.StatusCreated, refl)
}

// createCommunityMessage handles POST /v1/community.
func (s *Server) createCommunityMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SenderLabel string `json:"senderLabel"`
		Text        string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg, err := s.Ops.PostCommunityMessage(r.Context(), in.SenderLabel, in.Text)
	if err != nil {
		writeOpError(w, err)
		return
	}
	logger.Info("community_message_created", "id", msg.ID)
	_ = utils.JSONWrite(w, http.StatusCreated, msg)
}

// addReaction handles POST /v1/community/{id}/reactions.
func (s *Server) addReaction(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg, err := s.Ops.AddReaction(r.Context(), mux.Vars(r)["id"], in.Symbol)
	if err != nil {
		writeOpError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, msg)
}

// appendChatMessage handles POST /v1/chats/{id}/messages. The session is
// created lazily on first append.
func (s *Server) appendChatMessage(w http.ResponseWriter, r *http.Request) {
	var in ops.ChatAppendInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	in.SessionID = mux.Vars(r)["id"]
	session, err := s.Ops.AppendChatMessage(r.Context(), in)
	if err != nil {
		writeOpError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, session)
}

// getChatSession handles GET /v1/chats/{id}.
func (s *Server) getChatSession(w http.ResponseWriter, r *http.Request) {
	raw, err := s.Ops.Store().Get(r.Context(), store.KindChat, mux.Vars(r)["id"])
	if err != nil {
		writeOpError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// recordContact handles POST /v1/contacts.
func (s *Server) recordContact(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Persona string `json:"persona"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.Ops.RecordContact(r.Context(), in.Persona); err != nil {
		writeOpError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// listKind handles the plain collection GETs; records come back newest
// first exactly as the store orders them.
func (s *Server) listKind(kind store.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := s.Ops.Store().List(r.Context(), kind)
		if err != nil {
			writeOpError(w, err)
			return
		}
		if records == nil {
			records = []json.RawMessage{}
		}
		_ = utils.JSONWrite(w, http.StatusOK, records)
	}
}

// getAffirmation handles GET /v1/affirmation from the cache; no provider
// call happens on this path.
func (s *Server) getAffirmation(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"text": s.Affirm.Get()})
}

// speak handles POST /v1/tts. Audio is optional: when synthesis is
// unavailable the response carries no audio and the client skips playback.
func (s *Server) speak(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	audio, err := s.TTS.Speak(r.Context(), in.Text)
	if err != nil || audio == nil {
		_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"audio": nil})
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"audio":    base64.StdEncoding.EncodeToString(audio),
		"mimeType": "audio/pcm",
	})
}

// unlockTap handles POST /v1/unlock/tap for the hidden admin gate.
func (s *Server) unlockTap(w http.ResponseWriter, r *http.Request) {
	state := s.Gate.Tap()
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"state":    state,
		"unlocked": state == adminlock.StateUnlocked,
	})
}

// submitAdminReply handles POST /v1/admin/replies/{kind}/{id}.
func (s *Server) submitAdminReply(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	vars := mux.Vars(r)
	raw, err := s.Ops.SubmitAdminReply(r.Context(), store.Kind(vars["kind"]), vars["id"], in.Text)
	if err != nil {
		writeOpError(w, err)
		return
	}
	logger.Info("admin_reply_attached", "kind", vars["kind"], "id", vars["id"])
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// listChatSessions handles GET /v1/admin/chats, most recent first.
func (s *Server) listChatSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Ops.ListChatSessions(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, sessions)
}

// moodStats handles GET /v1/admin/stats/moods.
func (s *Server) moodStats(w http.ResponseWriter, r *http.Request) {
	counts, err := stats.MoodFrequency(r.Context(), s.Ops.Store())
	if err != nil {
		writeOpError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, counts)
}

// contactStats handles GET /v1/admin/stats/contacts.
func (s *Server) contactStats(w http.ResponseWriter, r *http.Request) {
	counts, err := stats.ContactFrequency(r.Context(), s.Ops.Store())
	if err != nil {
		writeOpError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, counts)
}

// clearKind handles DELETE /v1/admin/clear/{kind}. The X-Confirm header
// must name the kind being cleared; this is the second step of the UI's
// double confirmation.
func (s *Server) clearKind(w http.ResponseWriter, r *http.Request) {
	kind := store.Kind(mux.Vars(r)["kind"])
	if r.Header.Get("X-Confirm") != string(kind) {
		utils.JSONError(w, http.StatusPreconditionRequired, "X-Confirm header must repeat the kind")
		return
	}
	if err := s.Ops.ClearAll(r.Context(), kind); err != nil {
		writeOpError(w, err)
		return
	}
	logger.Warn("collection_cleared", "kind", string(kind))
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "cleared"})
}
