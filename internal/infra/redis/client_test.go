package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestKeys(t *testing.T) {
	c := NewFromRedis(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer c.Close()

	q := NewPendingWriteQueue(c)
	if got := q.queueKey(); got != "vaultd:pending_writes" {
		t.Errorf("unexpected queue key %s", got)
	}
	if got := q.writeKey("abc"); got != "vaultd:pending_write:abc" {
		t.Errorf("unexpected write key %s", got)
	}

	p := NewPriceCache(NewFromRedis(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "test"), 0)
	if got := p.key("22691"); got != "test:price:22691" {
		t.Errorf("unexpected price key %s", got)
	}
}

func TestNewClientBadURL(t *testing.T) {
	if _, err := NewClient(Config{URL: "://nope"}); err == nil {
		t.Error("expected error for bad URL")
	}
}
