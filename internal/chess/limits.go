package chess

import (
	"strconv"
	"strings"

	"github.com/park285/chess-analysis-board/internal/chess/uci"
)

func BuildGoCommand(p AnalysisProfile) ([]string, error) {
	if err := ValidateProfile(p); err != nil {
		return nil, err
	}

	args := []string{"go"}
	if p.DepthCap > 0 {
		args = append(args, "depth", strconv.Itoa(p.DepthCap))
	}
	if p.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(p.MoveTimeMillis))
	}
	if p.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(p.NodeCap))
	}
	return args, nil
}

func FormatGoCommand(p AnalysisProfile) (string, error) {
	args, err := BuildGoCommand(p)
	if err != nil {
		return "", err
	}
	return strings.Join(args, " "), nil
}

// LimitsFor converts a profile into session limits.
func LimitsFor(p AnalysisProfile) uci.Limits {
	return uci.Limits{
		Depth:          p.DepthCap,
		MoveTimeMillis: p.MoveTimeMillis,
		NodeCap:        p.NodeCap,
	}
}
