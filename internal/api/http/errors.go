package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/LVYUANSU/book-manage-system/internal/exam"
)

// writeErr maps the domain error taxonomy onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch exam.KindOf(err) {
	case exam.KindNotFound:
		status = http.StatusNotFound
	case exam.KindInvalidArgument:
		status = http.StatusBadRequest
	case exam.KindConflict, exam.KindInvalidState:
		status = http.StatusConflict
	case exam.KindExpired:
		status = http.StatusGone
	case exam.KindForbidden:
		status = http.StatusForbidden
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

// pageResponse is the list+total shape shared by paginated queries.
type pageResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
}
