package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/LVYUANSU/book-manage-system/internal/catalog"
)

func SaveBookHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b catalog.Book
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		created, err := svc.SaveBook(r.Context(), b)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, created)
	}
}

func UpdateBookHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b catalog.Book
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		b.ID = chi.URLParam(r, "bookID")
		updated, err := svc.UpdateBook(r.Context(), b)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, updated)
	}
}

func DeleteBooksHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := svc.DeleteBooks(r.Context(), req.IDs); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func QueryBooksHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, total, err := svc.QueryBooks(r.Context(), catalog.BookQuery{
			Name:      strings.TrimSpace(r.URL.Query().Get("name")),
			Publisher: strings.TrimSpace(r.URL.Query().Get("publisher")),
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

func SaveSubjectHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s catalog.Subject
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		created, err := svc.SaveSubject(r.Context(), s)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, created)
	}
}

func UpdateSubjectHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s catalog.Subject
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		s.ID = chi.URLParam(r, "subjectID")
		updated, err := svc.UpdateSubject(r.Context(), s)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, updated)
	}
}

func DeleteSubjectsHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := svc.DeleteSubjects(r.Context(), req.IDs); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListSubjectsHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.ListSubjects(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, items)
	}
}
