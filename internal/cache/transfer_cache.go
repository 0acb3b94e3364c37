package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ledger/internal/domain"
)

const transferKeyPrefix = "ledger:transfer:"

// TransferCache holds terminal transfers, which never change once written.
type TransferCache interface {
	Get(ctx context.Context, id int64) (*domain.Transfer, bool)
	Set(ctx context.Context, transfer *domain.Transfer)
}

type redisTransferCache struct {
	views *ViewCache[domain.Transfer]
}

func NewRedisTransferCache(client *goredis.Client, ttl time.Duration, logger *zap.Logger) TransferCache {
	return &redisTransferCache{
		views: NewViewCache[domain.Transfer](client, ttl, logger.With(zap.String("component", "transfer_cache"))),
	}
}

func (c *redisTransferCache) Get(ctx context.Context, id int64) (*domain.Transfer, bool) {
	return c.views.Get(ctx, transferKey(id))
}

func (c *redisTransferCache) Set(ctx context.Context, transfer *domain.Transfer) {
	if !transfer.IsTerminal() {
		return
	}
	c.views.Set(ctx, transferKey(transfer.ID), transfer)
}

func transferKey(id int64) string {
	return fmt.Sprintf("%s%d", transferKeyPrefix, id)
}

// NopTransferCache never hits.
type NopTransferCache struct{}

func (NopTransferCache) Get(context.Context, int64) (*domain.Transfer, bool) { return nil, false }

func (NopTransferCache) Set(context.Context, *domain.Transfer) {}
