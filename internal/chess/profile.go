package chess

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AnalysisProfile is a named search budget for position analysis.
type AnalysisProfile struct {
	Name           string `yaml:"name"`
	MoveTimeMillis int    `yaml:"movetime_ms"`
	DepthCap       int    `yaml:"depth"`
	NodeCap        int    `yaml:"nodes"`
	MultiPV        int    `yaml:"multipv"`
}

const (
	ProfileQuick = "quick"
	ProfileDeep  = "deep"
	ProfileTop   = "top"

	// DefaultTopMoves is the number of lines the top-moves query asks for.
	DefaultTopMoves = 4
	maxMultiPV      = 32
)

var profileMu sync.RWMutex

var DefaultProfiles = map[string]AnalysisProfile{
	ProfileQuick: {
		Name:           ProfileQuick,
		MoveTimeMillis: 100,
		MultiPV:        1,
	},
	ProfileDeep: {
		Name:           ProfileDeep,
		MoveTimeMillis: 1500,
		DepthCap:       24,
		MultiPV:        1,
	},
	ProfileTop: {
		Name:           ProfileTop,
		MoveTimeMillis: 300,
		MultiPV:        DefaultTopMoves,
	},
}

func GetProfile(name string) (AnalysisProfile, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "default", "fast":
		key = ProfileQuick
	case "full", "slow":
		key = ProfileDeep
	case "multipv", "topmoves":
		key = ProfileTop
	}
	profileMu.RLock()
	p, ok := DefaultProfiles[key]
	profileMu.RUnlock()
	if !ok {
		return AnalysisProfile{}, fmt.Errorf("unknown analysis profile: %s", name)
	}
	return p, nil
}

// SetProfile adds or replaces a profile after validating it.
func SetProfile(p AnalysisProfile) error {
	p.Name = strings.ToLower(strings.TrimSpace(p.Name))
	if p.Name == "" {
		return fmt.Errorf("analysis profile name required")
	}
	if err := ValidateProfile(p); err != nil {
		return err
	}
	profileMu.Lock()
	DefaultProfiles[p.Name] = p
	profileMu.Unlock()
	return nil
}

// ProfileNames lists the registered profiles in name order.
func ProfileNames() []string {
	profileMu.RLock()
	defer profileMu.RUnlock()
	names := make([]string, 0, len(DefaultProfiles))
	for name := range DefaultProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ValidateProfile(p AnalysisProfile) error {
	switch {
	case p.MoveTimeMillis < 0:
		return fmt.Errorf("move time must be >= 0: %d", p.MoveTimeMillis)
	case p.DepthCap < 0:
		return fmt.Errorf("depth cap must be >= 0: %d", p.DepthCap)
	case p.NodeCap < 0:
		return fmt.Errorf("node cap must be >= 0: %d", p.NodeCap)
	case p.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", p.MultiPV)
	case p.MultiPV > maxMultiPV:
		return fmt.Errorf("multipv must be <= %d: %d", maxMultiPV, p.MultiPV)
	case p.MoveTimeMillis == 0 && p.DepthCap == 0 && p.NodeCap == 0:
		return fmt.Errorf("profile %s does not define search limits", p.Name)
	}
	return nil
}

// WithMultiPV returns p asking for n lines, clamped to the supported range.
func (p AnalysisProfile) WithMultiPV(n int) AnalysisProfile {
	if n <= 0 {
		n = 1
	}
	if n > maxMultiPV {
		n = maxMultiPV
	}
	p.MultiPV = n
	return p
}

// Key identifies the budget for cache keys.
func (p AnalysisProfile) Key() string {
	return fmt.Sprintf("mt=%d|d=%d|n=%d|pv=%d", p.MoveTimeMillis, p.DepthCap, p.NodeCap, p.MultiPV)
}
