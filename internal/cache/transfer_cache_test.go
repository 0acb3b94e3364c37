package cache

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ledger/internal/domain"
)

func TestTransferKey(t *testing.T) {
	if got := transferKey(42); got != "ledger:transfer:42" {
		t.Fatalf("transferKey(42)=%q", got)
	}
}

func TestNopTransferCache(t *testing.T) {
	var c TransferCache = NopTransferCache{}
	c.Set(context.Background(), &domain.Transfer{ID: 1, Status: domain.TransferStatusSuccess})
	if _, ok := c.Get(context.Background(), 1); ok {
		t.Fatal("nop cache should never hit")
	}
}

func TestRedisTransferCacheDegradesWhenUnreachable(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	c := NewRedisTransferCache(client, time.Minute, zap.New(core))
	ctx := context.Background()

	c.Set(ctx, &domain.Transfer{ID: 7, Amount: decimal.NewFromInt(5), Status: domain.TransferStatusSuccess})
	if _, ok := c.Get(ctx, 7); ok {
		t.Fatal("unreachable cache should miss")
	}
	if logs.FilterMessage("Cache write failed").Len() != 1 {
		t.Fatalf("expected one logged write failure, got %v", logs.All())
	}
	if logs.FilterMessage("Cache read failed").Len() != 1 {
		t.Fatalf("expected one logged read failure, got %v", logs.All())
	}
}

func TestRedisTransferCacheSkipsPendingTransfers(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	c := NewRedisTransferCache(client, time.Minute, zap.New(core))
	c.Set(context.Background(), &domain.Transfer{ID: 8, Status: domain.TransferStatusPending})
	if logs.Len() != 0 {
		t.Fatalf("pending transfer should not reach redis, got %v", logs.All())
	}
}
