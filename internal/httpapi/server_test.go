package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	nchess "github.com/corentings/chess/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-analysis-board/internal/chess/analysis"
	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/chess/input"
	"github.com/park285/chess-analysis-board/internal/feed"
	"github.com/park285/chess-analysis-board/internal/msgcat"
	"github.com/park285/chess-analysis-board/internal/service/coordinator"
	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

type stubAnalyzer struct {
	down atomic.Bool
}

func (a *stubAnalyzer) Analyze(ctx context.Context, pos board.Position, opts analysis.Options) (analysis.Evaluation, error) {
	if a.down.Load() {
		return analysis.Evaluation{}, fmt.Errorf("%w: stub down", analysis.ErrEngineUnavailable)
	}
	n := opts.MultiPV
	if n <= 0 {
		n = opts.Profile.MultiPV
	}
	ev := analysis.Evaluation{FEN: pos.FEN, Score: 20, Depth: 8}
	for i := 1; i <= n; i++ {
		ev.Lines = append(ev.Lines, analysis.Line{Rank: i, Move: "e2e4", Score: 20 - i})
	}
	return ev, nil
}

type fixture struct {
	srv      *httptest.Server
	analyzer *stubAnalyzer
	hub      *feed.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	a := &stubAnalyzer{}
	hub := feed.NewHub()
	coord, err := coordinator.New(a, coordinator.Config{Publisher: hub})
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	coord.Start()
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	srv := httptest.NewServer(New(coord, hub, WithMessages(msgs), WithHealth(func() bool { return !a.down.Load() })).Routes())
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		coord.Close()
	})
	return &fixture{srv: srv, analyzer: a, hub: hub}
}

func (f *fixture) post(t *testing.T, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
		r = http.NoBody
	case string:
		r = strings.NewReader(b)
		contentType = "application/x-chess-pgn"
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	resp, err := http.Post(f.srv.URL+path, contentType, r)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

func (f *fixture) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

func decodeSnapshot(t *testing.T, raw []byte) analysisdto.Snapshot {
	t.Helper()
	var snap analysisdto.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v (%s)", err, raw)
	}
	return snap
}

func decodeError(t *testing.T, raw []byte) analysisdto.ErrorResponse {
	t.Helper()
	var resp analysisdto.ErrorResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode error: %v (%s)", err, raw)
	}
	return resp
}

func TestSnapshotAndMoves(t *testing.T) {
	f := newFixture(t)
	status, raw := f.get(t, "/api/snapshot")
	if status != http.StatusOK || decodeSnapshot(t, raw).Position.FEN != board.StartFEN {
		t.Fatalf("snapshot: %d %s", status, raw)
	}

	status, raw = f.post(t, "/api/move", analysisdto.MoveRequest{Move: "e4"})
	if status != http.StatusOK {
		t.Fatalf("move: %d %s", status, raw)
	}
	if snap := decodeSnapshot(t, raw); len(snap.Past) != 1 || snap.Past[0].SAN != "e4" {
		t.Fatalf("past = %+v", snap.Past)
	}

	status, raw = f.post(t, "/api/move", analysisdto.MoveRequest{Move: "Ke5"})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("illegal move status = %d", status)
	}
	e := decodeError(t, raw)
	if e.Error.Code != "illegal_move" || e.Error.Message != "Illegal move." || e.Snapshot == nil || len(e.Snapshot.Past) != 1 {
		t.Fatalf("illegal move body = %+v", e)
	}

	if status, raw = f.post(t, "/api/move", map[string]any{"mv": "e5"}); status != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d %s", status, raw)
	}
}

func TestNavigationBoundaries(t *testing.T) {
	f := newFixture(t)
	pgn := "1. d4 d5 2. c4 *"
	status, raw := f.post(t, "/api/load/pgn", pgn)
	if status != http.StatusOK {
		t.Fatalf("load: %d %s", status, raw)
	}
	if snap := decodeSnapshot(t, raw); len(snap.Future) != 3 {
		t.Fatalf("future = %d", len(snap.Future))
	}
	if status, raw = f.post(t, "/api/backward", nil); status != http.StatusConflict {
		t.Fatalf("backward at start = %d %s", status, raw)
	}
	if decodeError(t, raw).Error.Code != "no_past_moves" {
		t.Fatalf("code = %s", raw)
	}
	for range 3 {
		if status, raw = f.post(t, "/api/forward", nil); status != http.StatusOK {
			t.Fatalf("forward = %d %s", status, raw)
		}
	}
	if status, _ = f.post(t, "/api/forward", nil); status != http.StatusConflict {
		t.Fatalf("forward at end = %d", status)
	}

	status, raw = f.post(t, "/api/load/pgn", analysisdto.LoadPGNRequest{PGN: "1. e4 Qx9"})
	if status != http.StatusBadRequest || decodeError(t, raw).Error.Code != "record_parse" {
		t.Fatalf("bad pgn = %d %s", status, raw)
	}

	status, raw = f.post(t, "/api/load/moves", analysisdto.LoadMovesRequest{Moves: []string{"e2e4", "e7e5"}})
	if status != http.StatusOK || len(decodeSnapshot(t, raw).Future) != 2 {
		t.Fatalf("load moves = %d %s", status, raw)
	}
}

func TestPointerFlowAndFlip(t *testing.T) {
	f := newFixture(t)
	geo := input.NewGeometry(input.DefaultSquareSize)
	press := geo.Center(nchess.G1, false)
	drop := geo.Center(nchess.F3, false)

	if status, raw := f.post(t, "/api/pointer/press", analysisdto.PointerRequest{X: press.X, Y: press.Y}); status != http.StatusOK {
		t.Fatalf("press = %d %s", status, raw)
	}
	status, raw := f.post(t, "/api/pointer/drag", analysisdto.PointerRequest{X: 300, Y: 420})
	if status != http.StatusOK || decodeSnapshot(t, raw).Drag == nil {
		t.Fatalf("drag = %d %s", status, raw)
	}
	status, raw = f.post(t, "/api/pointer/release", analysisdto.PointerRequest{X: drop.X, Y: drop.Y})
	if status != http.StatusOK {
		t.Fatalf("release = %d %s", status, raw)
	}
	if snap := decodeSnapshot(t, raw); len(snap.Past) != 1 || snap.Past[0].SAN != "Nf3" {
		t.Fatalf("drop = %+v", snap.Past)
	}

	status, raw = f.post(t, "/api/flip", analysisdto.FlipRequest{})
	if status != http.StatusOK || decodeSnapshot(t, raw).Orientation != analysisdto.OrientationBlack {
		t.Fatalf("flip = %d %s", status, raw)
	}
	if status, raw = f.post(t, "/api/squares/d7/press", nil); status != http.StatusOK {
		t.Fatalf("square press = %d %s", status, raw)
	}
	if status, raw = f.post(t, "/api/squares/d5/release", nil); status != http.StatusOK || len(decodeSnapshot(t, raw).Past) != 2 {
		t.Fatalf("square release = %d %s", status, raw)
	}
	if status, _ = f.post(t, "/api/squares/z9/press", nil); status != http.StatusBadRequest {
		t.Fatalf("bad square = %d", status)
	}
	if status, _ = f.post(t, "/api/pointer/drag", analysisdto.PointerRequest{X: 1, Y: 1}); status != http.StatusConflict {
		t.Fatalf("drag without selection = %d", status)
	}
	if status, _ = f.post(t, "/api/promote", analysisdto.PromoteRequest{Piece: "k"}); status != http.StatusUnprocessableEntity {
		t.Fatalf("king promotion = %d", status)
	}
}

func TestTopMovesAndEngineOutage(t *testing.T) {
	f := newFixture(t)
	status, raw := f.post(t, "/api/top", analysisdto.TopMovesRequest{N: 3})
	if status != http.StatusOK {
		t.Fatalf("top = %d %s", status, raw)
	}
	var top analysisdto.TopMovesResponse
	if err := json.Unmarshal(raw, &top); err != nil || len(top.Lines) != 3 {
		t.Fatalf("top body = %s", raw)
	}

	f.analyzer.down.Store(true)
	status, raw = f.post(t, "/api/top", nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("top while down = %d %s", status, raw)
	}
	if e := decodeError(t, raw); !e.Error.Retryable || e.Error.Code != "engine_unavailable" {
		t.Fatalf("outage body = %+v", e)
	}
	// moves keep working
	if status, raw = f.post(t, "/api/move", analysisdto.MoveRequest{Move: "c4"}); status != http.StatusOK {
		t.Fatalf("move while down = %d %s", status, raw)
	}
	status, raw = f.get(t, "/healthz")
	if status != http.StatusOK || !strings.Contains(string(raw), `"engine":false`) {
		t.Fatalf("healthz = %d %s", status, raw)
	}
}

func TestArchiveDisabled(t *testing.T) {
	f := newFixture(t)
	if status, _ := f.post(t, "/api/archive", nil); status != http.StatusNotImplemented {
		t.Fatalf("archive = %d", status)
	}
	if status, _ := f.get(t, "/api/archive?limit=x"); status != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", status)
	}
}

func TestFeedStreamsActions(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if status, raw := f.post(t, "/api/move", analysisdto.MoveRequest{Move: "e2e4"}); status != http.StatusOK {
		t.Fatalf("move = %d %s", status, raw)
	}
	for {
		var snap analysisdto.Snapshot
		if err := wsjson.Read(ctx, conn, &snap); err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(snap.Past) == 1 {
			return
		}
	}
}
