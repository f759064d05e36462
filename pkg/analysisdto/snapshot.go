package analysisdto

// Analysis status values.
const (
	StatusPending     = "pending"
	StatusReady       = "ready"
	StatusUnavailable = "unavailable"
)

// Orientation values.
const (
	OrientationWhite = "white"
	OrientationBlack = "black"
)

// Snapshot is one consistent view of the board, its timeline and the
// evaluation of exactly that position.
type Snapshot struct {
	Seq         uint64          `json:"seq"`
	Session     string          `json:"session"`
	Action      string          `json:"action,omitempty"`
	Notice      string          `json:"notice,omitempty"`
	Position    PositionView    `json:"position"`
	Past        []PlyView       `json:"past"`
	Future      []FutureView    `json:"future"`
	Status      string          `json:"status"`
	Evaluation  *EvaluationView `json:"evaluation,omitempty"`
	Orientation string          `json:"orientation"`
	Selection   *SelectionView  `json:"selection,omitempty"`
	Opening     *OpeningView    `json:"opening,omitempty"`
	Drag        *DragFrame      `json:"drag,omitempty"`
}

type PositionView struct {
	FEN     string `json:"fen"`
	Turn    string `json:"turn"`
	Check   bool   `json:"check,omitempty"`
	Outcome string `json:"outcome"`
	Method  string `json:"method,omitempty"`
	Ply     int    `json:"ply"`
}

type PlyView struct {
	Ply int    `json:"ply"`
	UCI string `json:"uci"`
	SAN string `json:"san"`
	FEN string `json:"fen"`
}

type FutureView struct {
	UCI string `json:"uci"`
	SAN string `json:"san,omitempty"`
}

type LineView struct {
	Rank   int      `json:"rank"`
	Move   string   `json:"move"`
	SAN    string   `json:"san,omitempty"`
	Score  int      `json:"score"`
	Mate   bool     `json:"mate,omitempty"`
	MateIn int      `json:"mate_in,omitempty"`
	Depth  int      `json:"depth"`
	PV     []string `json:"pv,omitempty"`
	PVSAN  []string `json:"pv_san,omitempty"`
}

// EvaluationView scores are from White's perspective.
type EvaluationView struct {
	FEN        string     `json:"fen"`
	Score      int        `json:"score"`
	Mate       bool       `json:"mate,omitempty"`
	MateIn     int        `json:"mate_in,omitempty"`
	Depth      int        `json:"depth"`
	BestMove   string     `json:"best_move,omitempty"`
	BestSAN    string     `json:"best_san,omitempty"`
	WhiteShare float64    `json:"white_share"`
	Lines      []LineView `json:"lines,omitempty"`
	Profile    string     `json:"profile,omitempty"`
	Terminal   bool       `json:"terminal,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Cached     bool       `json:"cached,omitempty"`
}

type SelectionView struct {
	State  string `json:"state"`
	Square string `json:"square,omitempty"`
	Target string `json:"target,omitempty"`
}

type OpeningView struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// DragFrame is a floating-piece frame for the renderer.
type DragFrame struct {
	Square string `json:"square"`
	Piece  string `json:"piece"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}
