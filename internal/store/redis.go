package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gyaneshwarpardhi/tradeledger/internal/event"
)

// appendScript stores the event body and indexes it by time in one atomic step.
// Index members are "<seq>|<id>" with a fixed-width insertion sequence, so
// equal scores come back from ZREVRANGE newest insert first.
// KEYS[1] = event body key, KEYS[2] = time index (sorted set), KEYS[3] = sequence
// ARGV[1] = encoded event, ARGV[2] = score (event time, unix micros), ARGV[3] = event id
var appendScript = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
    return 0
end
local seq = redis.call("INCR", KEYS[3])
redis.call("ZADD", KEYS[2], ARGV[2], string.format("%020d", seq) .. "|" .. ARGV[3])
return 1
`)

const seqWidth = 20

// Redis keeps each event as a JSON string and a sorted set of event ids
// scored by event time.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key namespace, default "tradeledger"
}

// NewRedis creates a store backed by the given Redis server.
func NewRedis(opts RedisOptions) *Redis {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "tradeledger"
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: prefix,
	}
}

// Ping checks connectivity.
func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() error { return s.client.Close() }

func (s *Redis) eventKey(id string) string { return s.prefix + ":event:" + id }
func (s *Redis) indexKey() string         { return s.prefix + ":events_by_time" }
func (s *Redis) seqKey() string           { return s.prefix + ":event_seq" }

// memberID strips the insertion sequence from an index member.
func memberID(member string) string {
	if len(member) > seqWidth && member[seqWidth] == '|' {
		return member[seqWidth+1:]
	}
	return member
}

type redisRecord struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Subject     string `json:"subject"`
	Source      string `json:"source"`
	TradingDate string `json:"trading_date"`
	EventTime   int64  `json:"event_time_us"` // unix micros
	Payload     string `json:"payload"`
}

func (s *Redis) Put(ctx context.Context, e event.Event) error {
	if err := validate(e); err != nil {
		return err
	}
	at := e.EventTime.UTC().Truncate(time.Microsecond)
	body, err := json.Marshal(redisRecord{
		ID:          e.ID,
		Type:        string(e.Type),
		Subject:     e.Subject,
		Source:      e.Source,
		TradingDate: e.TradingDate.UTC().Format(dateLayout),
		EventTime:   at.UnixMicro(),
		Payload:     string(e.Payload),
	})
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	n, err := appendScript.Run(ctx, s.client,
		[]string{s.eventKey(e.ID), s.indexKey(), s.seqKey()},
		string(body), at.UnixMicro(), e.ID,
	).Int()
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("put %s: %w", e.ID, ErrAlreadyExists)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, id string) (event.Event, error) {
	body, err := s.client.Get(ctx, s.eventKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return event.Event{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return decodeRedisRecord(body)
}

func (s *Redis) ListByTimeDesc(ctx context.Context) ([]event.Event, error) {
	members, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list event ids: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]string, len(members))
	keys := make([]string, len(members))
	for i, m := range members {
		ids[i] = memberID(m)
		keys[i] = s.eventKey(ids[i])
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	out := make([]event.Event, 0, len(vals))
	for i, v := range vals {
		body, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("event %s indexed but missing", ids[i])
		}
		e, err := decodeRedisRecord(body)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeRedisRecord(body string) (event.Event, error) {
	var rec redisRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return event.Event{}, fmt.Errorf("decode event: %w", err)
	}
	e := event.Event{
		ID:        rec.ID,
		Type:      event.Type(rec.Type),
		Subject:   rec.Subject,
		Source:    rec.Source,
		EventTime: time.UnixMicro(rec.EventTime).UTC(),
		Payload:   []byte(rec.Payload),
	}
	if d, err := time.Parse(dateLayout, rec.TradingDate); err == nil {
		e.TradingDate = d
	} else {
		e.TradingDate = event.DateOf(e.EventTime)
	}
	return e, nil
}

var _ EventStore = (*Redis)(nil)
