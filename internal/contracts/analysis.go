package contracts

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AnalysisRecord is what a run hands to persistence.
// Contract is only legitimate when Persistable is true.
type AnalysisRecord struct {
	RunID            string                 `json:"run_id"`
	Symbol           string                 `json:"symbol"`
	StartedAt        time.Time              `json:"started_at"`
	Duration         time.Duration          `json:"duration"`
	Results          map[string]*TaskResult `json:"results"`
	Synthesis        *SynthesisOutput       `json:"synthesis,omitempty"`
	Contract         *SignalContract        `json:"contract,omitempty"`
	Persistable      bool                   `json:"persistable"`
	ValidationErrors []string               `json:"validation_errors,omitempty"`
}

// SuccessCount returns how many task results succeeded
func (r *AnalysisRecord) SuccessCount() int {
	n := 0
	for _, res := range r.Results {
		if res != nil && res.Success {
			n++
		}
	}
	return n
}

// ErrInvalidSymbol is returned for symbols that are empty or malformed
var ErrInvalidSymbol = errors.New("invalid symbol")

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,11}$`)

// NormalizeSymbol upper-cases and trims a ticker, rejecting anything that is
// not 1..12 chars of letters, digits, dot or dash
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if !symbolPattern.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	return sym, nil
}
