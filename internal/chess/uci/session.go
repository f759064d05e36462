package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadyTimeout = 4 * time.Second
	stopDrainTimeout    = 2 * time.Second
	quitGrace           = 500 * time.Millisecond
	lineBuffer          = 256
)

var (
	ErrEngineExited  = errors.New("engine process exited")
	ErrSearchTimeout = errors.New("engine search exceeded its budget")
	ErrSessionBroken = errors.New("engine session out of sync")
)

// Config describes how to launch and tune the engine process.
type Config struct {
	BinaryPath string
	Args       []string
	Env        []string
	Threads    int
	HashMB     int
	Logger     *zap.Logger
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// ScoreKind tells which score shape the engine reported.
type ScoreKind int

const (
	ScoreNone ScoreKind = iota
	// ScoreCentipawns is "score cp N".
	ScoreCentipawns
	// ScoreMate is "score mate N"; N is moves to mate, negative when the side
	// to move is being mated.
	ScoreMate
	// ScorePlain is a bare "score N", read as centipawns.
	ScorePlain
)

// Score is the raw engine score, relative to the side to move.
type Score struct {
	Kind  ScoreKind
	Value int
	Bound string
}

func (s Score) Set() bool { return s.Kind != ScoreNone }

type Candidate struct {
	Rank      int
	Move      string
	Score     Score
	Depth     int
	Principal []string
}

type SearchRequest struct {
	FEN         string
	Moves       []string
	Limits      Limits
	MultiPV     int
	GoOverrides []string
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
	Ponder     string
	// Score is the last primary-line score, reported even when the engine
	// sends no principal variation (mated or stalemated positions).
	Score Score
	Depth int
}

// Session is one running engine process. A persistent reader goroutine feeds
// stdout lines to a channel, so abandoned reads never leak goroutines.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	exited chan struct{}
	done   chan struct{}
	logger *zap.Logger

	mu      sync.Mutex
	search  sync.Mutex
	multipv int
	broken  atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		return nil, fmt.Errorf("engine binary path required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// not CommandContext: the process outlives the constructor's context
	cmd := exec.Command(cfg.BinaryPath, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:     cmd,
		stdin:   stdin,
		lines:   make(chan string, lineBuffer),
		exited:  make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger.With(zap.String("engine", cfg.BinaryPath)),
		multipv: 1,
	}
	go s.readLoop(stdoutPipe)

	if err := s.initialize(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Alive reports whether the process is running and in protocol sync.
func (s *Session) Alive() bool {
	if s.broken.Load() {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// Search runs one search. Cancelling ctx sends "stop" and drains to
// bestmove before returning ctx.Err(); a session that fails to drain is
// marked broken.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	if s.broken.Load() {
		return SearchResponse{}, ErrSessionBroken
	}
	if !s.Alive() {
		return SearchResponse{}, ErrEngineExited
	}
	if err := s.setMultiPV(ctx, req.MultiPV); err != nil {
		return SearchResponse{}, err
	}

	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	if err := s.send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}

	goTokens := req.GoOverrides
	var err error
	if len(goTokens) == 0 {
		goTokens, err = buildGoTokens(req.Limits)
		if err != nil {
			return SearchResponse{}, err
		}
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	budget := time.NewTimer(computeSearchTimeout(req.Limits))
	defer budget.Stop()

	acc := newSearchAccumulator()
	for {
		select {
		case <-ctx.Done():
			s.abort("cancelled", strings.TrimSpace(positionCmd))
			return SearchResponse{}, ctx.Err()
		case <-budget.C:
			s.abort("budget exceeded", strings.TrimSpace(positionCmd))
			return SearchResponse{}, ErrSearchTimeout
		case line, ok := <-s.lines:
			if !ok {
				s.logger.Warn("engine exited during search",
					zap.String("position", strings.TrimSpace(positionCmd)),
					zap.String("go", goCmd))
				return SearchResponse{}, ErrEngineExited
			}
			if done := acc.consume(line); done {
				return acc.response(), nil
			}
		}
	}
}

// abort stops the running search and discards output up to bestmove.
func (s *Session) abort(reason, position string) {
	s.logger.Debug("stopping search", zap.String("reason", reason), zap.String("position", position))
	if err := s.send("stop\n"); err != nil {
		s.broken.Store(true)
		return
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), stopDrainTimeout)
	defer cancel()
	if err := s.awaitToken(drainCtx, "bestmove"); err != nil {
		s.logger.Warn("engine did not answer stop", zap.Error(err))
		s.broken.Store(true)
	}
}

func (s *Session) setMultiPV(ctx context.Context, n int) error {
	if n <= 0 {
		n = 1
	}
	if n == s.multipv {
		return nil
	}
	if err := s.send(fmt.Sprintf("setoption name MultiPV value %d\n", n)); err != nil {
		return fmt.Errorf("set multipv: %w", err)
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.multipv = n
	return nil
}

type searchAccumulator struct {
	candidates map[int]Candidate
	score      Score
	depth      int
	best       string
	ponder     string
}

func newSearchAccumulator() *searchAccumulator {
	return &searchAccumulator{candidates: make(map[int]Candidate)}
}

func (a *searchAccumulator) consume(line string) bool {
	switch {
	case strings.HasPrefix(line, "info "):
		info, ok := parseInfo(line)
		if !ok {
			return false
		}
		if info.Rank == 1 {
			if info.Score.Set() {
				a.score = info.Score
			}
			if info.Depth > a.depth {
				a.depth = info.Depth
			}
		}
		if info.Move != "" {
			a.candidates[info.Rank] = info
		}
	case strings.HasPrefix(line, "bestmove"):
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			a.best = parts[1]
		}
		if len(parts) >= 4 && parts[2] == "ponder" {
			a.ponder = parts[3]
		}
		return true
	}
	return false
}

func (a *searchAccumulator) response() SearchResponse {
	best := a.best
	if best == "(none)" || best == "0000" {
		best = ""
	}
	return SearchResponse{
		Candidates: collapseCandidates(a.candidates),
		BestMove:   best,
		Ponder:     a.ponder,
		Score:      a.score,
		Depth:      a.depth,
	}
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

// computeSearchTimeout is the hard wall-clock budget for one search, well
// above the requested limits so only a stuck engine trips it.
func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		return time.Duration(l.MoveTimeMillis)*time.Millisecond*3 + 2*time.Second
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	return 6 * time.Second
}

// parseInfo reads one "info" line. Lines without a pv still carry a score
// and depth; Move is empty for them.
func parseInfo(line string) (Candidate, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 || parts[0] != "info" {
		return Candidate{}, false
	}
	cand := Candidate{Rank: 1}
	seen := false
	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "string":
			// free text until end of line
			return Candidate{}, false
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil && v > 0 {
					cand.Rank = v
				}
				i++
			}
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					cand.Depth = v
					seen = true
				}
				i++
			}
		case "score":
			score, used := parseScore(parts[i+1:])
			if score.Set() {
				cand.Score = score
				seen = true
			}
			i += used
		case "pv":
			if i+1 < len(parts) {
				cand.Principal = append([]string(nil), parts[i+1:]...)
				cand.Move = cand.Principal[0]
				seen = true
			}
			i = len(parts)
		}
	}
	return cand, seen
}

// parseScore reads the tokens after "score" and reports how many it used.
func parseScore(tokens []string) (Score, int) {
	if len(tokens) == 0 {
		return Score{}, 0
	}
	var (
		score Score
		used  int
	)
	switch tokens[0] {
	case "cp", "mate":
		if len(tokens) < 2 {
			return Score{}, 1
		}
		v, err := strconv.Atoi(tokens[1])
		if err != nil {
			return Score{}, 2
		}
		score = Score{Kind: ScoreCentipawns, Value: v}
		if tokens[0] == "mate" {
			score.Kind = ScoreMate
		}
		used = 2
	default:
		v, err := strconv.Atoi(tokens[0])
		if err != nil {
			return Score{}, 0
		}
		score = Score{Kind: ScorePlain, Value: v}
		used = 1
	}
	if used < len(tokens) && (tokens[used] == "lowerbound" || tokens[used] == "upperbound") {
		score.Bound = tokens[used]
		used++
	}
	return score, used
}

func collapseCandidates(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	result := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		result = append(result, m[k])
	}
	return result
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// Close asks the engine to quit and kills it after a short grace period.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.send("quit\n")
		close(s.done)
		s.mu.Lock()
		if s.stdin != nil {
			s.stdin.Close()
		}
		s.mu.Unlock()

		select {
		case <-s.exited:
		case <-time.After(quitGrace):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
		}
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

func (s *Session) initialize(ctx context.Context, cfg Config) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	if err := s.applyOptions(cfg); err != nil {
		return err
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) applyOptions(cfg Config) error {
	var cmds []string
	if cfg.Threads > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Threads value %d\n", cfg.Threads))
	}
	if cfg.HashMB > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Hash value %d\n", cfg.HashMB))
	}
	cmds = append(cmds, "setoption name MultiPV value 1\n")
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.exited:
		return ErrEngineExited
	default:
	}
	if _, err := io.WriteString(s.stdin, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineExited, err)
	}
	return nil
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.HasPrefix(line, token) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", ErrEngineExited
		}
		return line, nil
	}
}

func (s *Session) readLoop(r io.Reader) {
	// exited must be closed before lines so a reader that sees lines end
	// also sees the process as gone
	defer close(s.lines)
	defer close(s.exited)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("engine stdout closed", zap.Error(err))
	}
}
