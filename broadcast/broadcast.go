// Package broadcast shares parsed records with display clients in other
// processes through redis. A record is stored under a short-lived key and
// its directory key is published on a channel.
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
	"go.uber.org/zap"

	"github.com/thavlik/tsmeta/tsfile"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "tsmeta"

// ErrExpired is returned by Fetch when the stored record is gone.
var ErrExpired = errors.New("record expired")

// Payload is what gets stored for each published key.
type Payload struct {
	Key           string         `json:"key"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Record        *tsfile.Record `json:"record"`
}

func rkRecord(key string) string {
	return fmt.Sprintf("r:%s:meta", key)
}

// Publisher stores and announces records.
type Publisher struct {
	redis   *redis.Client
	channel string
	ttl     time.Duration
}

// Connect dials redis and checks it responds.
func Connect(uri string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     uri,
		Password: "", // no password set
		DB:       0,  // use default DB
	})
	if _, err := client.Ping().Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return client, nil
}

// NewPublisher returns a Publisher on channel whose stored records
// expire after ttl.
func NewPublisher(client *redis.Client, channel string, ttl time.Duration) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{redis: client, channel: channel, ttl: ttl}
}

// Publish stores rec under key and announces key on the channel.
func (p *Publisher) Publish(key, correlationID string, rec *tsfile.Record) error {
	body, err := json.Marshal(&Payload{
		Key:           key,
		CorrelationID: correlationID,
		Record:        rec,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	pipe := p.redis.Pipeline()
	pipe.Set(rkRecord(key), body, p.ttl)
	pipe.Publish(p.channel, key)
	if _, err := pipe.Exec(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Fetch reads the record last published under key.
func Fetch(client *redis.Client, key string) (*Payload, error) {
	data, err := client.Get(rkRecord(key)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: '%s'", ErrExpired, key)
	} else if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	payload := &Payload{}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return payload, nil
}

// Watcher receives announced records and hands them to a callback.
type Watcher struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	channel string
	log     *zap.Logger
}

// Subscribe returns a Watcher whose subscription is confirmed, so any
// record published after it returns will be delivered.
func Subscribe(client *redis.Client, channel string, log *zap.Logger) (*Watcher, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	pubsub := client.Subscribe(channel)
	if _, err := pubsub.Receive(); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	return &Watcher{redis: client, pubsub: pubsub, channel: channel, log: log}, nil
}

// Run delivers records to fn until stop is closed or the subscription ends.
func (w *Watcher) Run(stop <-chan struct{}, fn func(*Payload)) {
	ch := w.pubsub.Channel()
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Channel != w.channel {
				continue
			}
			payload, err := Fetch(w.redis, msg.Payload)
			if err != nil {
				w.log.Warn("fetch published record", zap.String("key", msg.Payload), zap.Error(err))
				continue
			}
			fn(payload)
		}
	}
}

// Close ends the subscription.
func (w *Watcher) Close() error {
	return w.pubsub.Close()
}
