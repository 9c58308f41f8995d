// Package snapshot stores short-lived round snapshots and relays engine
// events to connected clients.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/engine"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// KV keeps a value under a key until ttl elapses.
type KV interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Publisher delivers engine events to subscribers.
type Publisher interface {
	PublishEvent(ctx context.Context, e engine.Event) error
}

type document struct {
	Key       string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// Store is a KV backed by a mongo collection with a TTL index on expires_at.
type Store struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewStore(db *mongo.Database, collection string) *Store {
	return &Store{coll: db.Collection(collection), now: time.Now}
}

func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", key, err)
	}

	now := s.now().UTC()
	doc := document{
		Key:       key,
		Payload:   string(payload),
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", key, err)
	}
	return nil
}

// Channel is the engine's broadcast channel: snapshots go to the KV,
// events go to the publisher. Either side may be nil.
type Channel struct {
	kv  KV
	pub Publisher
}

var _ engine.Broadcaster = (*Channel)(nil)

func NewChannel(kv KV, pub Publisher) *Channel {
	return &Channel{kv: kv, pub: pub}
}

func (c *Channel) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.kv == nil {
		return nil
	}
	return c.kv.Set(ctx, key, value, ttl)
}

func (c *Channel) Publish(ctx context.Context, e engine.Event) error {
	if c.pub == nil {
		return nil
	}
	if err := c.pub.PublishEvent(ctx, e); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type(), err)
	}
	return nil
}
