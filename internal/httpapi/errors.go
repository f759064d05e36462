package httpapi

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/chess-analysis-board/internal/chess/analysis"
	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/chess/input"
	"github.com/park285/chess-analysis-board/internal/chess/record"
	"github.com/park285/chess-analysis-board/internal/chess/timeline"
	"github.com/park285/chess-analysis-board/internal/service/archive"
	"github.com/park285/chess-analysis-board/internal/service/coordinator"
	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

type errorSpec struct {
	status    int
	code      string
	retryable bool
	data      map[string]any
}

// classify maps a domain error to its HTTP status and catalog key.
func classify(err error) errorSpec {
	switch {
	case errors.Is(err, board.ErrIllegalMove):
		return errorSpec{status: http.StatusUnprocessableEntity, code: "illegal_move", data: map[string]any{"move": ""}}
	case errors.Is(err, input.ErrInvalidPromotion):
		return errorSpec{status: http.StatusUnprocessableEntity, code: "invalid_promotion"}
	case errors.Is(err, timeline.ErrNoFutureMoves):
		return errorSpec{status: http.StatusConflict, code: "no_future_moves"}
	case errors.Is(err, timeline.ErrNoPastMoves), errors.Is(err, board.ErrEmptyHistory):
		return errorSpec{status: http.StatusConflict, code: "no_past_moves"}
	case errors.Is(err, input.ErrPromotionRequired):
		return errorSpec{status: http.StatusConflict, code: "promotion_required"}
	case errors.Is(err, input.ErrNoSelection):
		return errorSpec{status: http.StatusConflict, code: "no_selection"}
	case errors.Is(err, record.ErrRecordParse):
		return errorSpec{status: http.StatusBadRequest, code: "record_parse", data: map[string]any{"detail": ""}}
	case errors.Is(err, errBadRequest):
		return errorSpec{status: http.StatusBadRequest, code: "bad_request", data: map[string]any{"detail": err.Error()}}
	case errors.Is(err, archive.ErrGameNotFound):
		return errorSpec{status: http.StatusNotFound, code: "not_found", data: map[string]any{"what": "that archive id"}}
	case errors.Is(err, coordinator.ErrArchiveDisabled):
		return errorSpec{status: http.StatusNotImplemented, code: "archive_disabled"}
	case errors.Is(err, analysis.ErrEngineUnavailable):
		return errorSpec{status: http.StatusServiceUnavailable, code: "engine_unavailable", retryable: true}
	case errors.Is(err, coordinator.ErrClosed):
		return errorSpec{status: http.StatusServiceUnavailable, code: "internal", retryable: true}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errorSpec{status: http.StatusServiceUnavailable, code: "cancelled", retryable: true}
	default:
		return errorSpec{status: http.StatusInternalServerError, code: "internal"}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error, snap *analysisdto.Snapshot) {
	mapped := classify(err)
	if mapped.status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.String("code", mapped.code), zap.Error(err))
	}
	data := mapped.data
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, mapped.status, analysisdto.ErrorResponse{
		Error: analysisdto.DomainError{
			Code:      mapped.code,
			Message:   s.msgs.Text("errors."+mapped.code, data, err.Error()),
			Retryable: mapped.retryable,
		},
		Snapshot: snap,
	})
}
