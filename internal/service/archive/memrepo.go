package archive

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

// memrepo is used when no database is configured. Contents vanish on restart.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	gamesByID   map[int64]*analysisdto.AnalyzedGame
	gamesByUUID map[string]*analysisdto.AnalyzedGame
}

func NewMemoryRepository() Repository {
	return &memrepo{
		gamesByID:   make(map[int64]*analysisdto.AnalyzedGame),
		gamesByUUID: make(map[string]*analysisdto.AnalyzedGame),
	}
}

func (m *memrepo) InsertGame(ctx context.Context, game *analysisdto.AnalyzedGame) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}
	key := strings.TrimSpace(game.UUID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gamesByUUID[key]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	stored := cloneGame(game)
	stored.ID = m.nextID

	m.gamesByID[stored.ID] = stored
	m.gamesByUUID[key] = stored
	return stored.ID, nil
}

func (m *memrepo) RecentGames(ctx context.Context, limit int) ([]*analysisdto.AnalyzedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*analysisdto.AnalyzedGame, 0, len(m.gamesByID))
	for _, g := range m.gamesByID {
		items = append(items, cloneGame(g))
	}
	// newest first, id breaks ties
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit <= 0 {
		limit = 10
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) GetGame(ctx context.Context, id int64) (*analysisdto.AnalyzedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gamesByID[id]
	if !ok || g == nil {
		return nil, ErrGameNotFound
	}
	return cloneGame(g), nil
}

func cloneGame(g *analysisdto.AnalyzedGame) *analysisdto.AnalyzedGame {
	c := *g
	c.MovesUCI = append([]string(nil), g.MovesUCI...)
	c.MovesSAN = append([]string(nil), g.MovesSAN...)
	c.Evaluations = make([]*int, len(g.Evaluations))
	for i, v := range g.Evaluations {
		if v != nil {
			n := *v
			c.Evaluations[i] = &n
		}
	}
	return &c
}
