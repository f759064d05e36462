package analysisdto

type LoadPGNRequest struct {
	PGN string `json:"pgn"`
}

type LoadMovesRequest struct {
	FEN   string   `json:"fen,omitempty"`
	Moves []string `json:"moves"`
}

// MoveRequest carries SAN or UCI text.
type MoveRequest struct {
	Move string `json:"move"`
}

// PointerRequest is a pointer event in board-local pixels.
type PointerRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type PromoteRequest struct {
	Piece string `json:"piece"`
}

type FlipRequest struct {
	Flipped *bool `json:"flipped,omitempty"`
}

type TopMovesRequest struct {
	N int `json:"n,omitempty"`
}

type TopMovesResponse struct {
	FEN   string     `json:"fen"`
	Lines []LineView `json:"lines"`
}

type ArchiveRequest struct {
	Title string `json:"title,omitempty"`
}

type ArchiveListResponse struct {
	Games []*AnalyzedGame `json:"games"`
}
