package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/susu3304/gatebot/internal/admission"
)

const (
	defaultExpulsions = 50
	maxExpulsions     = 500
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := a.store.Snapshot(r.Context())
	if err != nil {
		http.Error(w, "failed to read admissions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (a *API) handleChatAdmissions(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(mux.Vars(r)["chat_id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid chat_id", http.StatusBadRequest)
		return
	}

	view, ok, err := a.store.ChatSnapshot(r.Context(), chatID)
	if err != nil {
		http.Error(w, "failed to read admissions", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleListExpulsions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultExpulsions, maxExpulsions)
	if err != nil {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	list, err := a.expulsions.RecentExpulsions(r.Context(), limit)
	if err != nil {
		log.Printf("api: list expulsions: %v", err)
		http.Error(w, "failed to list expulsions", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []admission.Expulsion{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
