package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/strogmv/fanout/internal/pkg/logger"
	"github.com/strogmv/fanout/internal/port"
)

func decodeEnvelope(dl port.DeadLetter) (port.Envelope, error) {
	var env port.Envelope
	if err := json.Unmarshal(dl.Envelope, &env); err != nil {
		return port.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" || len(env.Channels) == 0 {
		return port.Envelope{}, fmt.Errorf("envelope %s has no event or channels", dl.ID)
	}
	return env, nil
}

func loggerFor(ctx context.Context) *slog.Logger {
	return logger.From(ctx).With("component", "replay")
}
