package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeStatsRefresh = "license:stats:refresh"
)

type StatsRefreshPayload struct{}

func NewStatsRefreshTask(opts ...asynq.Option) (*asynq.Task, error) {
	payload := StatsRefreshPayload{}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	uniqueOpt := asynq.Unique(1 * time.Minute)
	allOpts := append(opts, uniqueOpt)

	return asynq.NewTask(TypeStatsRefresh, payloadBytes, allOpts...), nil
}
