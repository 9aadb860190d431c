package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/logger"
)

// JSONCache is the storage behind CachedScorer.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
}

// CachedScorer remembers scores per canonical input. Identical inputs
// (same template version, same text) are scored once.
type CachedScorer struct {
	next  out.CategoryScorer
	cache JSONCache
}

var _ out.CategoryScorer = (*CachedScorer)(nil)

func NewCachedScorer(next out.CategoryScorer, cache JSONCache) *CachedScorer {
	return &CachedScorer{next: next, cache: cache}
}

func (s *CachedScorer) Name() string {
	return s.next.Name()
}

// Score serves from the cache when possible. Cache errors are logged and
// never fail the call.
func (s *CachedScorer) Score(ctx context.Context, input domain.CanonicalInput) (map[domain.Category]float64, error) {
	key := s.cacheKey(input)
	log := logger.WithContext(ctx).WithField("scorer", s.next.Name())

	var cached map[string]float64
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		log.WithError(err).Warn("score cache read failed")
	}
	if hit {
		if scores, ok := fromNames(cached); ok {
			return scores, nil
		}
	}

	scores, err := s.next.Score(ctx, input)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetJSON(ctx, key, toNames(scores)); err != nil {
		log.WithError(err).Warn("score cache write failed")
	}
	return scores, nil
}

func (s *CachedScorer) cacheKey(input domain.CanonicalInput) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("v%d:%s:%s", domain.ModelInputTemplateVersion, s.next.Name(), hex.EncodeToString(sum[:]))
}

// Scores are cached by category name so a reordered catalogue cannot
// map an old entry to the wrong category.
func toNames(scores map[domain.Category]float64) map[string]float64 {
	named := make(map[string]float64, len(scores))
	for c, v := range scores {
		named[c.String()] = v
	}
	return named
}

func fromNames(named map[string]float64) (map[domain.Category]float64, bool) {
	if len(named) == 0 {
		return nil, false
	}
	scores := make(map[domain.Category]float64, len(named))
	for name, v := range named {
		c, err := domain.ParseCategory(name)
		if err != nil {
			return nil, false
		}
		scores[c] = v
	}
	return scores, true
}
