package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/LVYUANSU/book-manage-system/internal/auth"
	"github.com/LVYUANSU/book-manage-system/internal/eventlog"
)

// ListEventsHandler pages through the reporting log. Consumers poll with the
// last offset they have seen.
func ListEventsHandler(events *eventlog.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.Role(r.Context()) != auth.RoleAdmin {
			http.Error(w, "admin only", http.StatusForbidden)
			return
		}
		after, _ := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("after")), 10, 64)
		out, err := events.List(r.Context(), after, parseIntDefault(r.URL.Query().Get("limit"), 100))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, out)
	}
}
