package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"homework-helper/backend/pkg/cache"
)

// CachedGenerator reuses answers to identical text-only questions
type CachedGenerator struct {
	next     Generator
	cache    *cache.Cache
	provider string
}

// NewCachedGenerator wraps next with c; provider namespaces the keys
func NewCachedGenerator(next Generator, c *cache.Cache, provider string) *CachedGenerator {
	return &CachedGenerator{next: next, cache: c, provider: provider}
}

// GenerateAnswer implements Generator
func (g *CachedGenerator) GenerateAnswer(ctx context.Context, content, imageBase64 string) (string, error) {
	if imageBase64 != "" {
		return g.next.GenerateAnswer(ctx, content, imageBase64)
	}

	key := cacheKey(g.provider, content)
	if v, ok := g.cache.Get(key); ok {
		if answer, ok := v.(string); ok {
			return answer, nil
		}
	}

	answer, err := g.next.GenerateAnswer(ctx, content, imageBase64)
	if err != nil {
		return "", err
	}
	if answer != NoAnswerPlaceholder {
		g.cache.Set(key, answer)
	}
	return answer, nil
}

func cacheKey(provider, content string) string {
	sum := sha256.Sum256([]byte(provider + "\x00" + content))
	return "answer:" + hex.EncodeToString(sum[:])
}
