package analysisdto

import "time"

// AnalyzedGame is an archived line with the evaluation after every ply.
type AnalyzedGame struct {
	ID          int64     `json:"id"`
	UUID        string    `json:"uuid"`
	Title       string    `json:"title"`
	StartFEN    string    `json:"start_fen"`
	MovesUCI    []string  `json:"moves_uci"`
	MovesSAN    []string  `json:"moves_san"`
	Evaluations []*int    `json:"evaluations"`
	Opening     string    `json:"opening,omitempty"`
	Result      string    `json:"result"`
	PGN         string    `json:"pgn"`
	CreatedAt   time.Time `json:"created_at"`
}
