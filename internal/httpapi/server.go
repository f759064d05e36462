// Package httpapi is the JSON control API of the analysis board plus the
// snapshot feed endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	corechess "github.com/park285/chess-analysis-board/internal/chess"
	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/chess/input"
	"github.com/park285/chess-analysis-board/internal/chess/record"
	"github.com/park285/chess-analysis-board/internal/msgcat"
	"github.com/park285/chess-analysis-board/internal/service/coordinator"
	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

type Server struct {
	coord  *coordinator.Coordinator
	feed   http.Handler
	msgs   *msgcat.Catalog
	logger *zap.Logger
	health func() bool
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMessages(c *msgcat.Catalog) Option {
	return func(s *Server) { s.msgs = c }
}

// WithHealth reports engine liveness on /healthz.
func WithHealth(fn func() bool) Option {
	return func(s *Server) { s.health = fn }
}

func New(coord *coordinator.Coordinator, feed http.Handler, opts ...Option) *Server {
	s := &Server{coord: coord, feed: feed, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.feed != nil {
		r.Get("/ws", s.feed.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/profiles", s.handleProfiles)

		r.Post("/load/pgn", s.handleLoadPGN)
		r.Post("/load/moves", s.handleLoadMoves)
		r.Post("/forward", s.action(s.coord.StepForward))
		r.Post("/backward", s.action(s.coord.StepBackward))
		r.Post("/reset", s.action(s.coord.Reset))
		r.Post("/move", s.handleMove)
		r.Post("/flip", s.handleFlip)

		r.Post("/pointer/press", s.handlePointer(s.coord.Press))
		r.Post("/pointer/drag", s.handlePointer(s.coord.Drag))
		r.Post("/pointer/release", s.handlePointer(s.coord.Release))
		r.Post("/squares/{square}/press", s.handleSquare(s.coord.PressSquare))
		r.Post("/squares/{square}/release", s.handleSquare(s.coord.ReleaseSquare))
		r.Post("/promote", s.handlePromote)
		r.Post("/cancel", s.action(s.coord.CancelInput))

		r.Post("/top", s.handleTopMoves)

		r.Get("/archive", s.handleArchiveList)
		r.Post("/archive", s.handleArchive)
		r.Post("/archive/{id}/open", s.handleReopen)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(started)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	engine := true
	if s.health != nil {
		engine = s.health()
	}
	// the board works without the engine, so this stays 200
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "engine": engine})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"profiles": corechess.ProfileNames()})
}

func (s *Server) action(fn func() (analysisdto.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := fn()
		s.respond(w, snap, err)
	}
}

func (s *Server) handleLoadPGN(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var text io.Reader = body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req analysisdto.LoadPGNRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), nil)
			return
		}
		text = strings.NewReader(req.PGN)
	}
	snap, err := s.coord.LoadPGN(text)
	s.respond(w, snap, err)
}

func (s *Server) handleLoadMoves(w http.ResponseWriter, r *http.Request) {
	var req analysisdto.LoadMovesRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := record.FromUCI(req.FEN, req.Moves)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	snap, err := s.coord.LoadRecord(rec)
	s.respond(w, snap, err)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req analysisdto.MoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Move) == "" {
		s.writeError(w, fmt.Errorf("%w: move required", errBadRequest), nil)
		return
	}
	snap, err := s.coord.PlayNotation(strings.TrimSpace(req.Move))
	s.respond(w, snap, err)
}

func (s *Server) handleFlip(w http.ResponseWriter, r *http.Request) {
	var req analysisdto.FlipRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	snap, err := s.coord.Flip(req.Flipped)
	s.respond(w, snap, err)
}

func (s *Server) handlePointer(fn func(input.Point) (analysisdto.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analysisdto.PointerRequest
		if !s.decode(w, r, &req) {
			return
		}
		snap, err := fn(input.Point{X: req.X, Y: req.Y})
		s.respond(w, snap, err)
	}
}

func (s *Server) handleSquare(fn func(nchess.Square) (analysisdto.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sq, err := board.ParseSquare(chi.URLParam(r, "square"))
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), nil)
			return
		}
		snap, err := fn(sq)
		s.respond(w, snap, err)
	}
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req analysisdto.PromoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	pt, ok := board.ParsePromotion(req.Piece)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: %q", input.ErrInvalidPromotion, req.Piece), nil)
		return
	}
	snap, err := s.coord.Promote(pt)
	s.respond(w, snap, err)
}

func (s *Server) handleTopMoves(w http.ResponseWriter, r *http.Request) {
	var req analysisdto.TopMovesRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	resp, err := s.coord.TopMoves(r.Context(), req.N)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req analysisdto.ArchiveRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	game, err := s.coord.Archive(r.Context(), req.Title)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

func (s *Server) handleArchiveList(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, fmt.Errorf("%w: limit %q", errBadRequest, v), nil)
			return
		}
		limit = n
	}
	games, err := s.coord.RecentArchives(r.Context(), limit)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, analysisdto.ArchiveListResponse{Games: games})
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: id %q", errBadRequest, chi.URLParam(r, "id")), nil)
		return
	}
	snap, err := s.coord.Reopen(r.Context(), id)
	s.respond(w, snap, err)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, snap analysisdto.Snapshot, err error) {
	if err != nil {
		s.writeError(w, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
