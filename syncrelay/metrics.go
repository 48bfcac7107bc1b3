// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"context"
	"time"
)

const (
	MetricsOpDelta = "delta"

	MetricsStageTotal     = "total"
	MetricsStageRead      = "read"
	MetricsStageResolve   = "resolve"
	MetricsStagePersist   = "persist"
	MetricsStageBroadcast = "broadcast"
)

type StageTiming struct {
	Operation string
	Stage     string
	Duration  time.Duration
	Count     int
	Error     bool
}

type StageMetricsRecorder interface {
	ObserveStage(ctx context.Context, timing StageTiming)
}

type StageMetricsRecorderFunc func(ctx context.Context, timing StageTiming)

func (f StageMetricsRecorderFunc) ObserveStage(ctx context.Context, timing StageTiming) {
	f(ctx, timing)
}

func (r *Relay) stageTimingEnabled() bool {
	if r == nil || r.config == nil {
		return false
	}
	return r.config.StageMetrics != nil || r.config.LogStageTimings
}

func (r *Relay) stageStart() time.Time {
	if !r.stageTimingEnabled() {
		return time.Time{}
	}
	return time.Now()
}

func (r *Relay) observeStage(ctx context.Context, op, stage string, start time.Time, count int, hadError bool) {
	if start.IsZero() || r == nil || r.config == nil {
		return
	}

	timing := StageTiming{
		Operation: op,
		Stage:     stage,
		Duration:  time.Since(start),
		Count:     count,
		Error:     hadError,
	}

	if r.config.StageMetrics != nil {
		r.config.StageMetrics.ObserveStage(ctx, timing)
	}
	if r.config.LogStageTimings && r.logger != nil {
		r.logger.Debug("Stage timing",
			"op", timing.Operation,
			"stage", timing.Stage,
			"duration", timing.Duration,
			"count", timing.Count,
			"error", timing.Error,
		)
	}
}
