package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pollster/internal/stats/models"
)

const (
	sectionKeyPrefix = "stats:"
	seenKeyPrefix    = "stats:seen:"

	// seenTTL bounds how long a redelivered event is recognised. The stream
	// redelivers within minutes, so a week leaves ample margin.
	seenTTL = 7 * 24 * time.Hour
)

// Redis keeps each section in a hash and increments fields with HINCRBY so
// several projector instances can share the read-model.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Apply marks eventID seen with SETNX and then applies the increments in one
// MULTI/EXEC. If the increments fail the marker is removed so a redelivery
// applies them.
func (s *Redis) Apply(ctx context.Context, eventID string, incs []models.Increment) (bool, error) {
	seenKey := seenKeyPrefix + eventID
	fresh, err := s.client.SetNX(ctx, seenKey, "1", seenTTL).Result()
	if err != nil {
		return false, fmt.Errorf("mark event seen: %w", err)
	}
	if !fresh {
		return false, nil
	}
	if len(incs) == 0 {
		return true, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, inc := range incs {
			pipe.HIncrBy(ctx, sectionKeyPrefix+string(inc.Section), inc.Field, inc.By)
		}
		return nil
	})
	if err != nil {
		_ = s.client.Del(ctx, seenKey).Err()
		return false, fmt.Errorf("apply increments: %w", err)
	}
	return true, nil
}

// Sections reads every section hash in one pipeline.
func (s *Redis) Sections(ctx context.Context) (map[models.Section]models.Counters, error) {
	cmds := make(map[models.Section]*redis.MapStringStringCmd, len(models.Sections))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, section := range models.Sections {
			cmds[section] = pipe.HGetAll(ctx, sectionKeyPrefix+string(section))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read sections: %w", err)
	}

	out := make(map[models.Section]models.Counters, len(cmds))
	for section, cmd := range cmds {
		raw := cmd.Val()
		counters := make(models.Counters, len(raw))
		for field, v := range raw {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s.%s: %w", section, field, err)
			}
			counters[field] = n
		}
		out[section] = counters
	}
	return out, nil
}
