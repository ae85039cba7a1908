// Package api exposes the HTTP surface: JSON endpoints for every
// mutation, SSE streams fed by the subscription broker, and the admin
// routes behind an API-key check.
package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/valee-art/ALXIE/pkg/adminlock"
	"github.com/valee-art/ALXIE/pkg/ai"
	"github.com/valee-art/ALXIE/pkg/broker"
	"github.com/valee-art/ALXIE/pkg/ops"
	"github.com/valee-art/ALXIE/pkg/store"
	"github.com/valee-art/ALXIE/pkg/utils"
)

// Server bundles the dependencies the handlers need. Everything is
// injected; the package holds no singletons.
type Server struct {
	Ops    *ops.Service
	Broker *broker.Broker
	Affirm *ai.AffirmationCache
	TTS    ai.Synthesizer
	Gate   *adminlock.Gate

	AdminKeys      []string
	AllowedOrigins []string
	RateRPS        float64
	RateBurst      int

	limiters limiterPool
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)
	r.Use(s.rateLimitMiddleware)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/vents", s.createVent).Methods(http.MethodPost)
	v1.HandleFunc("/vents", s.listKind(store.KindVent)).Methods(http.MethodGet)
	v1.HandleFunc("/reflections", s.createReflection).Methods(http.MethodPost)
	v1.HandleFunc("/reflections", s.listKind(store.KindReflection)).Methods(http.MethodGet)
	v1.HandleFunc("/community", s.createCommunityMessage).Methods(http.MethodPost)
	v1.HandleFunc("/community", s.listKind(store.KindCommunity)).Methods(http.MethodGet)
	v1.HandleFunc("/community/{id}/reactions", s.addReaction).Methods(http.MethodPost)
	v1.HandleFunc("/chats/{id}/messages", s.appendChatMessage).Methods(http.MethodPost)
	v1.HandleFunc("/chats/{id}", s.getChatSession).Methods(http.MethodGet)
	v1.HandleFunc("/contacts", s.recordContact).Methods(http.MethodPost)
	v1.HandleFunc("/affirmation", s.getAffirmation).Methods(http.MethodGet)
	v1.HandleFunc("/tts", s.speak).Methods(http.MethodPost)
	v1.HandleFunc("/stream/{kind}", s.streamKind).Methods(http.MethodGet)
	v1.HandleFunc("/unlock/tap", s.unlockTap).Methods(http.MethodPost)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminKeyMiddleware)
	admin.HandleFunc("/replies/{kind}/{id}", s.submitAdminReply).Methods(http.MethodPost)
	admin.HandleFunc("/chats", s.listChatSessions).Methods(http.MethodGet)
	admin.HandleFunc("/stats/moods", s.moodStats).Methods(http.MethodGet)
	admin.HandleFunc("/stats/contacts", s.contactStats).Methods(http.MethodGet)
	admin.HandleFunc("/clear/{kind}", s.clearKind).Methods(http.MethodDelete)

	return r
}

// writeOpError maps service errors onto HTTP statuses.
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case ops.IsValidation(err):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrUnavailable):
		utils.JSONError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
