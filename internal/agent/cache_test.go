package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ cfg models.AIConfig }

func (stubProvider) Complete(context.Context, CompletionRequest) (*Completion, error) {
	return &Completion{Text: "ok"}, nil
}

func TestProviderCache(t *testing.T) {
	ctx := context.Background()
	builds := 0
	cache := NewProviderCache(2, func(cfg models.AIConfig) (Provider, error) {
		builds++
		return stubProvider{cfg: cfg}, nil
	})

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	cfg := models.AIConfig{Provider: "openai", APIKey: "k1"}

	p1, err := cache.Get(ctx, a, cfg)
	require.NoError(t, err)
	p2, err := cache.Get(ctx, a, cfg)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Equal(t, 1, builds)

	// rotated key rebuilds
	rotated := cfg
	rotated.APIKey = "k2"
	p3, err := cache.Get(ctx, a, rotated)
	require.NoError(t, err)
	require.Equal(t, "k2", p3.(stubProvider).cfg.APIKey)
	require.Equal(t, 2, builds)
	require.Equal(t, 1, cache.Len())

	_, err = cache.Get(ctx, b, cfg)
	require.NoError(t, err)
	// touch a so b is the eviction candidate
	_, err = cache.Get(ctx, a, rotated)
	require.NoError(t, err)
	_, err = cache.Get(ctx, c, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())
	require.Equal(t, 4, builds)

	_, err = cache.Get(ctx, a, rotated)
	require.NoError(t, err)
	require.Equal(t, 4, builds)

	_, err = cache.Get(ctx, b, cfg)
	require.NoError(t, err)
	require.Equal(t, 5, builds)

	cache.Invalidate(b)
	require.Equal(t, 1, cache.Len())
}

func TestProviderCacheFactoryError(t *testing.T) {
	cache := NewProviderCache(1, func(models.AIConfig) (Provider, error) {
		return nil, errors.New("bad config")
	})
	_, err := cache.Get(context.Background(), uuid.New(), models.AIConfig{APIKey: "k"})
	require.Error(t, err)
	require.Zero(t, cache.Len())
}

func TestFingerprint(t *testing.T) {
	a := models.AIConfig{Provider: "openai", Model: "m", APIKey: "k"}
	b := a
	require.Equal(t, Fingerprint(a), Fingerprint(b))
	b.Model = "other"
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
