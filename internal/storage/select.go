package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/orbital-protocol/relayer/internal/config"
)

const (
	canaryKey   = "orbital-relayer:canary"
	canaryValue = "ok"
)

type candidate struct {
	kind Kind
	open func() (Handle, error)
}

// Select picks the first configured backend whose canary round trip
// succeeds. REST comes first when its credentials are present; it holds no
// persistent connection. Select never fails: the fallback is Unavailable.
func Select(ctx context.Context, logger *zap.Logger, cfg config.Storage) Handle {
	logger = logger.With(zap.String("component", "StorageSelector"))

	var candidates []candidate
	if cfg.RestURL != "" && cfg.RestToken != "" {
		candidates = append(candidates, candidate{KindRest, func() (Handle, error) {
			return NewRestStore(cfg.RestURL, cfg.RestToken, cfg.CanaryTimeout), nil
		}})
	}
	if cfg.RedisURL != "" {
		candidates = append(candidates, candidate{KindProtocol, func() (Handle, error) {
			return NewRedisStore(cfg.RedisURL, cfg.RedisPassword, cfg.CanaryTimeout)
		}})
	}

	for _, c := range candidates {
		h, err := c.open()
		if err != nil {
			logger.Warn("Storage backend could not be created", zap.Stringer("backend", c.kind), zap.Error(err))
			continue
		}
		if err := Canary(ctx, h, cfg.CanaryTimeout); err != nil {
			logger.Warn("Storage canary failed", zap.Stringer("backend", c.kind), zap.Error(err))
			_ = h.Close()
			continue
		}
		logger.Info("Storage backend selected", zap.Stringer("backend", c.kind))
		return h
	}

	logger.Warn("Continuing without bookkeeping storage", zap.Error(ErrStorageUnavailable))
	return Unavailable{}
}

// Canary writes, reads back and deletes a sentinel key within timeout.
func Canary(ctx context.Context, h Handle, timeout time.Duration) error {
	store := kv(h)
	if store == nil {
		return ErrStorageUnavailable
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := store.Set(ctx, canaryKey, canaryValue, time.Minute); err != nil {
		return errors.Wrap(err, "canary set")
	}
	got, err := store.Get(ctx, canaryKey)
	if err != nil {
		return errors.Wrap(err, "canary get")
	}
	if got != canaryValue {
		return errors.Errorf("canary read back %q, want %q", got, canaryValue)
	}
	if err := store.Del(ctx, canaryKey); err != nil {
		return errors.Wrap(err, "canary delete")
	}
	return nil
}
