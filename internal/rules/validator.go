// Package rules maintains the linking rule matrix: per segment pair, the
// minimum and maximum number of internal links the analysis should target.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/linkmesh/linkmesh/internal/config"
	"github.com/linkmesh/linkmesh/internal/models"
)

// ValidationError reports a rejected rule edit or rule set. The matrix is
// untouched when this is returned.
type ValidationError struct {
	Source string
	Target string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule %s -> %s: %s", e.Source, e.Target, e.Reason)
}

// Validator owns an in-memory rule matrix and keeps 0 <= min <= max <= cap
// for every cell. A single-field edit that crosses min and max is repaired
// by dragging the other bound along; a negative value, a value above cap, or
// an unknown pair is rejected with no mutation. Pairs are materialized up
// front by ReplaceAll; edits never create cells. Safe for concurrent use.
type Validator struct {
	cap int

	mu     sync.Mutex
	matrix models.RuleMatrix
}

// NewValidator creates a validator with an empty matrix. cap bounds every
// min/max value; values at or below zero fall back to the default cap.
func NewValidator(cap int) *Validator {
	if cap < 1 {
		cap = config.DefaultRuleCap
	}
	return &Validator{cap: cap, matrix: models.RuleMatrix{}}
}

// Cap returns the upper bound applied to rule values.
func (v *Validator) Cap() int { return v.cap }

// checkBound returns the rejection reason for an out-of-domain value, or ""
// when n is usable.
func (v *Validator) checkBound(n int) string {
	if n < 0 {
		return "negative bound"
	}
	if n > v.cap {
		return fmt.Sprintf("bound above cap %d", v.cap)
	}
	return ""
}

// Get returns the rule for a segment pair.
func (v *Validator) Get(source, target string) (models.LinkingRule, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, ok := v.matrix[models.RuleKey{Source: source, Target: target}]
	return r, ok
}

// SetMin updates the minimum for an existing pair. When the new minimum
// exceeds the current maximum, the maximum is raised to match. A negative or
// above-cap value, or a pair not in the matrix, returns a *ValidationError
// and leaves the matrix untouched.
func (v *Validator) SetMin(source, target string, min int) (models.LinkingRule, error) {
	if reason := v.checkBound(min); reason != "" {
		return models.LinkingRule{}, &ValidationError{Source: source, Target: target, Reason: reason}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key := models.RuleKey{Source: source, Target: target}
	r, ok := v.matrix[key]
	if !ok {
		return models.LinkingRule{}, &ValidationError{Source: source, Target: target, Reason: "unknown segment pair"}
	}
	r.MinLinks = min
	if r.MaxLinks < min {
		r.MaxLinks = min
	}
	v.matrix[key] = r
	return r, nil
}

// SetMax updates the maximum for an existing pair. When the new maximum
// drops below the current minimum, the minimum is lowered to match. A
// negative or above-cap value, or a pair not in the matrix, returns a
// *ValidationError and leaves the matrix untouched.
func (v *Validator) SetMax(source, target string, max int) (models.LinkingRule, error) {
	if reason := v.checkBound(max); reason != "" {
		return models.LinkingRule{}, &ValidationError{Source: source, Target: target, Reason: reason}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key := models.RuleKey{Source: source, Target: target}
	r, ok := v.matrix[key]
	if !ok {
		return models.LinkingRule{}, &ValidationError{Source: source, Target: target, Reason: "unknown segment pair"}
	}
	r.MaxLinks = max
	if r.MinLinks > max {
		r.MinLinks = max
	}
	v.matrix[key] = r
	return r, nil
}

// ReplaceAll swaps the whole matrix in one step. Every entry is checked
// first; on the first invalid entry the existing matrix is left untouched
// and a *ValidationError is returned. Valid entries are stored as given.
func (v *Validator) ReplaceAll(incoming models.RuleMatrix) error {
	next := make(models.RuleMatrix, len(incoming))
	for key, r := range incoming {
		if key.Source == "" || key.Target == "" {
			return &ValidationError{Source: key.Source, Target: key.Target, Reason: "empty segment name"}
		}
		if r.MinLinks < 0 || r.MaxLinks < 0 {
			return &ValidationError{Source: key.Source, Target: key.Target, Reason: "negative bound"}
		}
		if r.MinLinks > v.cap || r.MaxLinks > v.cap {
			return &ValidationError{Source: key.Source, Target: key.Target,
				Reason: fmt.Sprintf("bound above cap %d", v.cap)}
		}
		if r.MinLinks > r.MaxLinks {
			return &ValidationError{Source: key.Source, Target: key.Target,
				Reason: fmt.Sprintf("min %d above max %d", r.MinLinks, r.MaxLinks)}
		}
		next[key] = r
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.matrix = next
	return nil
}

// Matrix returns a copy of the current matrix.
func (v *Validator) Matrix() models.RuleMatrix {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make(models.RuleMatrix, len(v.matrix))
	for k, r := range v.matrix {
		out[k] = r
	}
	return out
}

// Len returns the number of pairs in the matrix.
func (v *Validator) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.matrix)
}

// Pairs returns the segment pairs in deterministic order, for display.
func (v *Validator) Pairs() []models.RuleKey {
	v.mu.Lock()
	defer v.mu.Unlock()

	keys := make([]models.RuleKey, 0, len(v.matrix))
	for k := range v.matrix {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Source != keys[j].Source {
			return keys[i].Source < keys[j].Source
		}
		return keys[i].Target < keys[j].Target
	})
	return keys
}
