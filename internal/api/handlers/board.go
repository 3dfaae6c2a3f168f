package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/meridianrx/rxsub/internal/board"
)

// BoardHandler serves the ordered tracking board view.
type BoardHandler struct {
	board  *board.Board
	logger *zap.Logger
}

// NewBoardHandler creates a new handler
func NewBoardHandler(b *board.Board, logger *zap.Logger) *BoardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardHandler{board: b, logger: logger}
}

// Routes returns the handler routes
func (h *BoardHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/stats", h.Stats)
	r.Get("/{id}", h.Get)
	return r
}

// List handles GET /board, most actionable subscription first.
func (h *BoardHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.board.Items()
	h.respond(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// Get handles GET /board/{id}
func (h *BoardHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, ok := h.board.Get(chi.URLParam(r, "id"))
	if !ok {
		h.respond(w, http.StatusNotFound, map[string]string{"error": "subscription not found"})
		return
	}
	h.respond(w, http.StatusOK, item)
}

// Stats handles GET /board/stats
func (h *BoardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, h.board.Stats())
}

func (h *BoardHandler) respond(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
