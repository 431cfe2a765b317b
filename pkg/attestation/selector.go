// Package attestation implements the measured-boot attestation engine:
// profile/bundle matching on report intake, the closest-match introspection
// query, and the append-only decision journal. Grounded in the teacher's
// internal/statemachine idiom of small pure decision functions fed by a
// persistence.Store, generalized from host lifecycle to PCR-bundle
// lifecycle.
package attestation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carbide-fleet/carbide/pkg/model"
)

// ParseSelector parses the comma-and-dash PCR register grammar (e.g.
// "0-6,8"): comma-separated terms, each either a single register or an
// inclusive dash range. An empty string selects no registers; "*" is
// rejected — every register an approval can auto-promote must be named
// explicitly.
func ParseSelector(expr string) (model.PCRSelector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return model.PCRSelector{Registers: map[int]struct{}{}}, nil
	}
	if expr == "*" {
		return model.PCRSelector{}, fmt.Errorf("attestation: wildcard PCR selector is not permitted")
	}

	registers := map[int]struct{}{}
	for _, term := range strings.Split(expr, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			return model.PCRSelector{}, fmt.Errorf("attestation: empty term in selector %q", expr)
		}
		lo, hi, found := strings.Cut(term, "-")
		if !found {
			r, err := strconv.Atoi(term)
			if err != nil {
				return model.PCRSelector{}, fmt.Errorf("attestation: invalid register %q: %w", term, err)
			}
			registers[r] = struct{}{}
			continue
		}
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return model.PCRSelector{}, fmt.Errorf("attestation: invalid range start %q: %w", lo, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return model.PCRSelector{}, fmt.Errorf("attestation: invalid range end %q: %w", hi, err)
		}
		if end < start {
			return model.PCRSelector{}, fmt.Errorf("attestation: descending range %q", term)
		}
		for r := start; r <= end; r++ {
			registers[r] = struct{}{}
		}
	}
	return model.PCRSelector{Registers: registers}, nil
}

// FormatSelector renders a PCRSelector back to its canonical comma-and-dash
// form, collapsing consecutive registers into ranges. Used for audit
// logging and round-trip tests.
func FormatSelector(s model.PCRSelector) string {
	if len(s.Registers) == 0 {
		return ""
	}
	regs := make([]int, 0, len(s.Registers))
	for r := range s.Registers {
		regs = append(regs, r)
	}
	sortInts(regs)

	var terms []string
	i := 0
	for i < len(regs) {
		start := regs[i]
		end := start
		for i+1 < len(regs) && regs[i+1] == end+1 {
			i++
			end = regs[i]
		}
		if start == end {
			terms = append(terms, strconv.Itoa(start))
		} else {
			terms = append(terms, fmt.Sprintf("%d-%d", start, end))
		}
		i++
	}
	return strings.Join(terms, ",")
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
