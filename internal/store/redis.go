package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Humphreey/pinokio/internal/config"
)

// Redis is the production Store, backed by a Redis-compatible server.
// Raw/final families are streams, the series is a hash, deadlines are a
// sorted set keyed by deadline timestamp.
type Redis struct {
	c         *redis.Client
	keys      config.KeyTemplates
	groupName string
	schedKey  string
}

// NewRedis builds a Redis-backed Store from the redis config section.
func NewRedis(cfg *config.RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})
	return &Redis{
		c:         client,
		keys:      cfg.Keys,
		groupName: cfg.Aggregation.GroupName,
		schedKey:  cfg.Keys.SchedZset,
	}
}

func (r *Redis) rawKey(chatID string) string   { return keyFor(r.keys.RawStream, chatID) }
func (r *Redis) finalKey(chatID string) string { return keyFor(r.keys.FinalStream, chatID) }
func (r *Redis) aggKey(chatID string) string   { return keyFor(r.keys.AggHash, chatID) }

func keyFor(tpl, chatID string) string {
	out := make([]byte, 0, len(tpl)+len(chatID))
	const placeholder = "{chat_id}"
	for i := 0; i < len(tpl); {
		if i+len(placeholder) <= len(tpl) && tpl[i:i+len(placeholder)] == placeholder {
			out = append(out, chatID...)
			i += len(placeholder)
			continue
		}
		out = append(out, tpl[i])
		i++
	}
	return string(out)
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}

func (r *Redis) EnsureConsumerGroup(ctx context.Context, chatID string) error {
	err := r.c.XGroupCreateMkStream(ctx, r.rawKey(chatID), r.groupName, "0-0").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		// BUSYGROUP means the group already exists; anything else is logged
		// and swallowed, matching _ensure_consumer_group's tolerant behavior.
		log.Debug().Err(err).Str("chat_id", chatID).Msg("ensure_consumer_group")
	}
	return nil
}

func (r *Redis) AppendRaw(ctx context.Context, chatID string, e RawEvent) (string, error) {
	fields := map[string]interface{}{
		"user_id":     e.UserID,
		"messages_id": e.MessagesID,
		"username":    e.Username,
		"user_type":   e.UserType,
		"text":        e.Text,
		"timestamp":   strconv.FormatFloat(e.Timestamp, 'f', -1, 64),
		"type":        "short",
	}
	id, err := r.c.XAdd(ctx, &redis.XAddArgs{Stream: r.rawKey(chatID), Values: fields}).Result()
	if err != nil {
		return "", fmt.Errorf("store: append raw: %w", err)
	}
	return id, nil
}

func (r *Redis) ReadNewRaw(ctx context.Context, chatID, consumer string, max int64, blockMs int) ([]RawEvent, error) {
	res, err := r.c.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.groupName,
		Consumer: consumer,
		Streams:  []string{r.rawKey(chatID), ">"},
		Count:    max,
		Block:    time.Duration(blockMs) * time.Millisecond,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read new raw: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	out := make([]RawEvent, 0, len(res[0].Messages))
	for _, m := range res[0].Messages {
		out = append(out, rawEventFromFields(m.ID, m.Values))
	}
	return out, nil
}

func rawEventFromFields(id string, v map[string]interface{}) RawEvent {
	ts, _ := strconv.ParseFloat(fieldStr(v, "timestamp"), 64)
	return RawEvent{
		StreamID:   id,
		UserID:     fieldStr(v, "user_id"),
		MessagesID: fieldStr(v, "messages_id"),
		Username:   fieldStr(v, "username"),
		UserType:   fieldStr(v, "user_type"),
		Text:       fieldStr(v, "text"),
		Timestamp:  ts,
	}
}

func fieldStr(v map[string]interface{}, k string) string {
	s, _ := v[k].(string)
	return s
}

func (r *Redis) AckRaw(ctx context.Context, chatID, streamID string) error {
	return r.c.XAck(ctx, r.rawKey(chatID), r.groupName, streamID).Err()
}

func (r *Redis) DeleteRaw(ctx context.Context, chatID, streamID string) error {
	return r.c.XDel(ctx, r.rawKey(chatID), streamID).Err()
}

func (r *Redis) GetSeries(ctx context.Context, chatID string) (*Series, error) {
	v, err := r.c.HGetAll(ctx, r.aggKey(chatID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get series: %w", err)
	}
	if len(v) == 0 {
		return nil, nil
	}
	count, _ := strconv.Atoi(v["count"])
	startTS, _ := strconv.ParseFloat(v["start_ts"], 64)
	lastTS, _ := strconv.ParseFloat(v["last_ts"], 64)
	return &Series{
		UserID:     v["user_id"],
		MessagesID: v["messages_id"],
		Username:   v["username"],
		UserType:   v["user_type"],
		Text:       v["text"],
		StartTS:    startTS,
		LastTS:     lastTS,
		Count:      count,
	}, nil
}

func (r *Redis) PutSeries(ctx context.Context, chatID string, s Series) error {
	fields := map[string]interface{}{
		"user_id":     s.UserID,
		"messages_id": s.MessagesID,
		"username":    s.Username,
		"user_type":   s.UserType,
		"text":        s.Text,
		"start_ts":    strconv.FormatFloat(s.StartTS, 'f', -1, 64),
		"last_ts":     strconv.FormatFloat(s.LastTS, 'f', -1, 64),
		"count":       strconv.Itoa(s.Count),
	}
	return r.c.HSet(ctx, r.aggKey(chatID), fields).Err()
}

func (r *Redis) DeleteSeries(ctx context.Context, chatID string) error {
	return r.c.Del(ctx, r.aggKey(chatID)).Err()
}

func (r *Redis) AppendFinal(ctx context.Context, chatID string, m FinalMessage) (string, error) {
	fields := map[string]interface{}{
		"user_id":     m.UserID,
		"messages_id": m.MessagesID,
		"username":    m.Username,
		"user_type":   m.UserType,
		"text":        m.Text,
		"start_ts":    strconv.FormatFloat(m.StartTS, 'f', -1, 64),
		"end_ts":      strconv.FormatFloat(m.EndTS, 'f', -1, 64),
		"count":       strconv.Itoa(m.Count),
		"type":        "long",
	}
	id, err := r.c.XAdd(ctx, &redis.XAddArgs{Stream: r.finalKey(chatID), Values: fields}).Result()
	if err != nil {
		return "", fmt.Errorf("store: append final: %w", err)
	}
	return id, nil
}

func (r *Redis) ListFinal(ctx context.Context, chatID string, n int64) ([]FinalMessage, error) {
	entries, err := r.c.XRevRangeN(ctx, r.finalKey(chatID), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list final: %w", err)
	}
	out := make([]FinalMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, finalMessageFromFields(e.ID, e.Values))
	}
	return out, nil
}

func finalMessageFromFields(id string, v map[string]interface{}) FinalMessage {
	count, _ := strconv.Atoi(fieldStr(v, "count"))
	startTS, _ := strconv.ParseFloat(fieldStr(v, "start_ts"), 64)
	endTS, _ := strconv.ParseFloat(fieldStr(v, "end_ts"), 64)
	return FinalMessage{
		StreamID:   id,
		UserID:     fieldStr(v, "user_id"),
		MessagesID: fieldStr(v, "messages_id"),
		Username:   fieldStr(v, "username"),
		UserType:   fieldStr(v, "user_type"),
		Text:       fieldStr(v, "text"),
		StartTS:    startTS,
		EndTS:      endTS,
		Count:      count,
	}
}

func (r *Redis) DeleteFinal(ctx context.Context, chatID, streamID string) error {
	return r.c.XDel(ctx, r.finalKey(chatID), streamID).Err()
}

func (r *Redis) SetDeadline(ctx context.Context, chatID string, deadlineTS float64) error {
	return r.c.ZAdd(ctx, r.schedKey, redis.Z{Score: deadlineTS, Member: chatID}).Err()
}

func (r *Redis) RemoveDeadline(ctx context.Context, chatID string) error {
	return r.c.ZRem(ctx, r.schedKey, chatID).Err()
}

func (r *Redis) PopExpired(ctx context.Context, now float64, max int64) ([]string, error) {
	res, err := r.c.ZRangeByScore(ctx, r.schedKey, &redis.ZRangeBy{
		Min:    "0",
		Max:    strconv.FormatFloat(now, 'f', -1, 64),
		Offset: 0,
		Count:  max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("store: pop expired: %w", err)
	}
	return res, nil
}

func (r *Redis) ListDeadlinedChats(ctx context.Context) ([]string, error) {
	res, err := r.c.ZRange(ctx, r.schedKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list deadlined chats: %w", err)
	}
	return res, nil
}
