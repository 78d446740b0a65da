package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/LVYUANSU/book-manage-system/internal/auth"
	"github.com/LVYUANSU/book-manage-system/internal/exam"
)

func BeginAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PaperID string `json:"paper_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.PaperID == "" {
			http.Error(w, "paper_id required", http.StatusBadRequest)
			return
		}
		a, err := svc.BeginAttempt(r.Context(), req.PaperID, auth.UserID(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}

func SubmitAnswerHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Answer string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		score, err := svc.SubmitAnswer(r.Context(),
			chi.URLParam(r, "attemptID"), chi.URLParam(r, "questionID"), req.Answer)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]int{"score": score})
	}
}

func FinishAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.FinishAttempt(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}

func GetAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}

func ListAttemptsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := exam.AttemptListOpts{
			PaperID: strings.TrimSpace(r.URL.Query().Get("paper_id")),
			UserID:  strings.TrimSpace(r.URL.Query().Get("user_id")),
			Status:  strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:   parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:  parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		// non-admins only see their own attempts
		if auth.Role(r.Context()) != auth.RoleAdmin {
			opts.UserID = auth.UserID(r.Context())
		}
		items, err := svc.ListAttempts(r.Context(), opts)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, items)
	}
}

func ListAttemptRecordsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := svc.ListAttemptRecords(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, recs)
	}
}

func ApplyManualGradesHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Grades map[string]int `json:"grades"` // question_id -> points
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if auth.Role(r.Context()) != auth.RoleAdmin {
			http.Error(w, "admin only", http.StatusForbidden)
			return
		}
		a, err := svc.ApplyManualGrades(r.Context(),
			chi.URLParam(r, "attemptID"), req.Grades, auth.UserID(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}
