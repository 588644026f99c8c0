// Package selector lists the environments of a site that match a name
// pattern.
package selector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/model"
)

// ErrInvalidPattern is returned for patterns that do not compile.
var ErrInvalidPattern = errors.New("invalid environment pattern")

// Lister fetches every environment of a site.
type Lister interface {
	ListEnvironments(ctx context.Context, site string) ([]model.Environment, error)
}

// Selector filters and orders environments.
type Selector struct {
	lister Lister
	logger *zap.Logger
}

// New creates a Selector.
func New(lister Lister, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{lister: lister, logger: logger}
}

// Compile parses pattern as an unanchored regular expression.
func Compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	return re, nil
}

// Matching returns the environments whose id matches pattern, in the
// order the platform listed them.
func (s *Selector) Matching(ctx context.Context, site, pattern string) ([]model.Environment, error) {
	re, err := Compile(pattern)
	if err != nil {
		return nil, err
	}

	envs, err := s.lister.ListEnvironments(ctx, site)
	if err != nil {
		return nil, err
	}

	matched := Filter(envs, re)
	s.logger.Debug("Selected environments",
		zap.String("site", site),
		zap.String("pattern", pattern),
		zap.Int("total", len(envs)),
		zap.Int("matched", len(matched)),
	)
	return matched, nil
}

// OldestMatching returns the environments whose id matches pattern,
// oldest first. Environments created at the same time keep their
// listing order. The result is a snapshot and is not refreshed.
func (s *Selector) OldestMatching(ctx context.Context, site, pattern string) ([]model.Environment, error) {
	matched, err := s.Matching(ctx, site, pattern)
	if err != nil {
		return nil, err
	}
	SortOldestFirst(matched)
	return matched, nil
}

// Filter keeps the environments whose id matches re.
func Filter(envs []model.Environment, re *regexp.Regexp) []model.Environment {
	out := make([]model.Environment, 0, len(envs))
	for _, env := range envs {
		if re.MatchString(env.ID) {
			out = append(out, env)
		}
	}
	return out
}

// SortOldestFirst orders envs by creation time, stably.
func SortOldestFirst(envs []model.Environment) {
	sort.SliceStable(envs, func(i, j int) bool {
		return envs[i].CreatedAt.Before(envs[j].CreatedAt)
	})
}
