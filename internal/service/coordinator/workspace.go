package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-analysis-board/internal/chess/record"
	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

const workspaceWriteTimeout = 500 * time.Millisecond

// workspaceState is the persisted line: where it starts, how far we are and
// what lies ahead.
type workspaceState struct {
	Start   string   `json:"start"`
	Past    []string `json:"past"`
	Future  []string `json:"future"`
	Flipped bool     `json:"flipped"`
}

func (c *Coordinator) workspaceKey() string {
	return "workspace:" + c.cfg.WorkspaceKey
}

func (c *Coordinator) persistLocked() {
	if c.cfg.Workspace == nil {
		return
	}
	state := workspaceState{Start: c.tl.Store().Start().FEN, Flipped: c.flipped}
	for _, e := range c.tl.Past() {
		state.Past = append(state.Past, e.Move.UCI())
	}
	for _, m := range c.tl.Future() {
		state.Future = append(state.Future, m.UCI())
	}
	ctx, cancel := context.WithTimeout(c.base, workspaceWriteTimeout)
	defer cancel()
	if err := c.cfg.Workspace.Set(ctx, c.workspaceKey(), state, c.cfg.WorkspaceTTL); err != nil {
		c.logger.Warn("workspace save failed", zap.Error(err))
	}
}

// Restore reloads the line saved by a previous run. It reports false when
// nothing was saved.
func (c *Coordinator) Restore(ctx context.Context) (analysisdto.Snapshot, bool, error) {
	if c.cfg.Workspace == nil {
		return c.Snapshot(), false, nil
	}
	var state workspaceState
	ok, err := c.cfg.Workspace.Lookup(ctx, c.workspaceKey(), &state)
	if err != nil {
		return c.Snapshot(), false, fmt.Errorf("load workspace: %w", err)
	}
	if !ok {
		return c.Snapshot(), false, nil
	}
	line := make([]string, 0, len(state.Past)+len(state.Future))
	line = append(append(line, state.Past...), state.Future...)
	rec, err := record.FromUCI(state.Start, line)
	if err != nil {
		return c.Snapshot(), false, fmt.Errorf("restore workspace: %w", err)
	}
	snap, err := c.mutate("restore", func() (string, error) {
		if err := c.tl.Load(rec.Start, rec.Moves); err != nil {
			return NoticeRecordParse, err
		}
		for range state.Past {
			if _, err := c.tl.StepForward(); err != nil {
				return noticeFor(err), err
			}
		}
		c.validator.Cancel()
		c.flipped = state.Flipped
		clear(c.scores)
		return "", nil
	})
	if err != nil {
		return snap, false, err
	}
	c.logger.Info("workspace restored",
		zap.Int("past", len(state.Past)),
		zap.Int("future", len(state.Future)))
	return snap, true, nil
}
