package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ameliahart/undercurrent"
	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine *undercurrent.Engine
	secret []byte
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleLogin exchanges a user name for a bearer token. The server is
// meant to sit behind the owner's own network boundary; there is no
// password layer.
func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" {
		errorJSON(w, http.StatusBadRequest, "user name required")
		return
	}

	user, err := h.engine.ResolveUser(req.User)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unknown user")
		return
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleEntryList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.engine.ListEntries(userID, limit, offset)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []undercurrent.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) handleEntryCreate(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		Date  string `json:"date"` // YYYY-MM-DD, optional
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var date time.Time
	if req.Date != "" {
		var err error
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
	}

	entry, err := h.engine.AddEntry(userID, req.Title, req.Body, date)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func entryIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("entryID"), 10, 64)
}

func (h *handlers) handleEntryGet(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	entryID, err := entryIDFromRequest(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid entry ID")
		return
	}

	entry, err := h.engine.GetEntry(userID, entryID)
	if err != nil {
		errorJSON(w, http.StatusNotFound, "entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handlers) handleEntryUpdate(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	entryID, err := entryIDFromRequest(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid entry ID")
		return
	}

	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entry, err := h.engine.UpdateEntry(userID, entryID, req.Title, req.Body)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handlers) handleEntryDelete(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	entryID, err := entryIDFromRequest(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid entry ID")
		return
	}

	if err := h.engine.DeleteEntry(userID, entryID); err != nil {
		errorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleThemeList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	themes, err := h.engine.Themes(userID)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	if themes == nil {
		themes = []undercurrent.Theme{}
	}
	writeJSON(w, http.StatusOK, themes)
}

func (h *handlers) handleThemeDelete(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	themeID := r.PathValue("themeID")

	if err := h.engine.RemoveTheme(userID, themeID); err != nil {
		errorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInsightsRun runs the insight pipeline synchronously. The gates
// map to distinct status codes so clients can tell refusals apart.
func (h *handlers) handleInsightsRun(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	force := r.URL.Query().Get("force") == "true"

	report, err := h.engine.GenerateInsights(r.Context(), userID, force)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, undercurrent.ErrInsufficientData):
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, undercurrent.ErrAlreadyRanThisWeek):
		errorJSON(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, undercurrent.ErrRunInProgress):
		errorJSON(w, http.StatusConflict, err.Error())
	default:
		var extractErr *undercurrent.ExtractionError
		if errors.As(err, &extractErr) {
			errorJSON(w, http.StatusBadGateway, err.Error())
			return
		}
		errorJSON(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) handleInsightsStatus(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	status, err := h.engine.InsightStatus(userID)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) handleInsightsHistory(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.engine.RunHistory(userID, limit)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []undercurrent.InsightRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}
