// Package wallet resolves application users to on-chain addresses.
package wallet

import (
	"context"
	"fmt"
	"time"

	"spliton/internal/domain"
	"spliton/internal/ton"
	"spliton/pkg/errors"
	"spliton/pkg/logger"
)

const cacheTTL = 10 * time.Minute

// Directory resolves userIDs to TON addresses, with a cache in front of the
// repository. Resolution failures are surfaced, never swallowed: a debt whose
// counterparty cannot be resolved must drop out of the plan visibly.
type Directory struct {
	repo   Repository
	cache  Cache
	logger logger.Logger
}

func NewDirectory(repo Repository, cache Cache, log logger.Logger) *Directory {
	return &Directory{repo: repo, cache: cache, logger: log}
}

// ResolveAddress returns the TON address linked to a user.
func (d *Directory) ResolveAddress(ctx context.Context, userID string) (ton.Address, error) {
	key := cacheKey(userID)

	if d.cache != nil {
		var cached string
		if err := d.cache.Get(ctx, key, &cached); err == nil && cached != "" {
			return ton.Address(cached), nil
		}
	}

	link, err := d.repo.FindByUserID(ctx, userID)
	if err != nil {
		return "", errors.Wrap(errors.ErrAddressNotResolved, fmt.Sprintf("user %s", userID))
	}

	addr, err := ton.ParseAddress(link.Address)
	if err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("stored address for user %s", userID))
	}

	if d.cache != nil {
		if err := d.cache.Set(ctx, key, addr.String(), cacheTTL); err != nil {
			d.logger.Warn("Failed to cache resolved address", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}

	return addr, nil
}

// LinkAddress stores or replaces a user's address and invalidates the cache.
func (d *Directory) LinkAddress(ctx context.Context, userID string, raw string) error {
	addr, err := ton.ParseAddress(raw)
	if err != nil {
		return err
	}

	link := &domain.WalletLink{
		UserID:    userID,
		Address:   addr.String(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := d.repo.Upsert(ctx, link); err != nil {
		return errors.Wrap(err, "failed to store wallet link")
	}

	if d.cache != nil {
		_ = d.cache.Delete(ctx, cacheKey(userID))
	}

	d.logger.Info("Wallet linked", map[string]interface{}{
		"user_id": userID,
		"address": addr.String(),
	})
	return nil
}

func cacheKey(userID string) string {
	return "wallet:addr:" + userID
}

// Repository persists user-to-address links.
type Repository interface {
	FindByUserID(ctx context.Context, userID string) (*domain.WalletLink, error)
	Upsert(ctx context.Context, link *domain.WalletLink) error
}

// Cache is satisfied by pkg/cache.RedisCache.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}
