package utils

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestCorrelationRef(t *testing.T) {
	ev := &WebhookEvent{CustomFields: map[string]string{"CAMPAIGN_REF": "7-1203-1773480413"}}
	assert.Equal(t, "7-1203-1773480413", ev.CorrelationRef())

	assert.Empty(t, (&WebhookEvent{}).CorrelationRef())
	assert.Empty(t, (&WebhookEvent{CustomFields: map[string]string{}}).CorrelationRef())
}

func TestDedupKey(t *testing.T) {
	a := &WebhookEvent{Event: "bounce", SubscriberUID: "s1", BounceType: "hard", Timestamp: 100}
	b := &WebhookEvent{Event: "bounce", SubscriberUID: "s1", BounceType: "hard", Timestamp: 100}
	c := &WebhookEvent{Event: "bounce", SubscriberUID: "s1", BounceType: "soft", Timestamp: 100}

	assert.Equal(t, a.dedupKey(), b.dedupKey(), "same event must fingerprint identically")
	assert.NotEqual(t, a.dedupKey(), c.dedupKey())
	assert.True(t, strings.HasPrefix(a.dedupKey(), "webhook:seen:"))
}

func TestAlreadySeen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	wr := &WebhookReconciler{Redis: rdb, Logger: testLogger()}
	ev := &WebhookEvent{Event: "open", SubscriberUID: "s1", Timestamp: 42}

	ctx := context.Background()
	assert.False(t, wr.alreadySeen(ctx, ev), "first delivery is fresh")
	assert.True(t, wr.alreadySeen(ctx, ev), "second delivery is a duplicate")

	other := &WebhookEvent{Event: "open", SubscriberUID: "s2", Timestamp: 42}
	assert.False(t, wr.alreadySeen(ctx, other))
}

func TestAlreadySeenWithoutRedis(t *testing.T) {
	wr := &WebhookReconciler{Logger: testLogger()}
	ev := &WebhookEvent{Event: "open", SubscriberUID: "s1"}

	// Dedup degrades to the per-handler state guards.
	assert.False(t, wr.alreadySeen(context.Background(), ev))
	assert.False(t, wr.alreadySeen(context.Background(), ev))
}
