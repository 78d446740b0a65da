package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/LVYUANSU/book-manage-system/internal/auth"
	"github.com/LVYUANSU/book-manage-system/internal/exam"
)

func CreatePaperHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p exam.Paper
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		p.UserID = auth.UserID(r.Context())
		created, err := svc.CreatePaper(r.Context(), p)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, created)
	}
}

func UpdatePaperHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p exam.Paper
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		p.ID = chi.URLParam(r, "paperID")
		updated, err := svc.UpdatePaper(r.Context(), p)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, updated)
	}
}

func DeletePapersHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := svc.DeletePapers(r.Context(), req.IDs); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func GetPaperHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.GetPaper(r.Context(), chi.URLParam(r, "paperID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, p)
	}
}

func ListPapersHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, total, err := svc.ListPapers(r.Context(), exam.PaperListOpts{
			SubjectID: strings.TrimSpace(r.URL.Query().Get("subject_id")),
			Q:         strings.TrimSpace(r.URL.Query().Get("q")),
			ViewerID:  auth.UserID(r.Context()),
			Limit:     parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:    parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, pageResponse{Items: items, Total: total})
	}
}

// --- composer ---

type questionIDsReq struct {
	QuestionIDs []string `json:"question_ids"`
}

type totalScoreResp struct {
	TotalScore int `json:"total_score"`
}

func AddPaperQuestionsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req questionIDsReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		total, err := svc.AddQuestions(r.Context(), chi.URLParam(r, "paperID"), req.QuestionIDs)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, totalScoreResp{TotalScore: total})
	}
}

func RemovePaperQuestionsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req questionIDsReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		total, err := svc.RemoveQuestions(r.Context(), chi.URLParam(r, "paperID"), req.QuestionIDs)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, totalScoreResp{TotalScore: total})
	}
}

func ListPaperQuestionsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := svc.ListPaperQuestions(r.Context(), chi.URLParam(r, "paperID"), auth.UserID(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, qs)
	}
}
