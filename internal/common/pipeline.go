// Package common holds small helpers shared across the streaming pipeline
// stages (C3 Retriever, C5 ReAct Engine, C7 Stream Orchestrator, C8 History
// Manager), grounded on chat_pipline/common.go's pipelineInfo/Warn/Error.
package common

import (
	"context"
	"fmt"

	"github.com/weknora-chat/ragstream/internal/logger"
)

// Stage names used for tracing spans and log fields, one per pipeline step
// named in spec.md §4.7.
const (
	StageLoadHistory = "LoadHistory"
	StageCacheProbe  = "CacheProbe"
	StageRetrieve    = "Retrieve"
	StageReact       = "React"
	StagePersist     = "Persist"
)

// PipelineInfo logs an informational message tagged with the stage name.
func PipelineInfo(ctx context.Context, stage, format string, args ...any) {
	logger.Infof(ctx, "[%s] %s", stage, fmt.Sprintf(format, args...))
}

// PipelineWarn logs a recoverable condition (e.g. rerank fallback, see
// spec.md §4.3 "Failure policy").
func PipelineWarn(ctx context.Context, stage, format string, args ...any) {
	logger.Warnf(ctx, "[%s] %s", stage, fmt.Sprintf(format, args...))
}

// PipelineError logs a stage failure before it is wrapped into an AppError
// and propagated per spec.md §7.
func PipelineError(ctx context.Context, stage string, err error, format string, args ...any) {
	logger.Errorf(ctx, "[%s] %s: %v", stage, fmt.Sprintf(format, args...), err)
}

// TruncateWithEllipsis implements the "truncated to a caller-specified soft
// limit ... with an ellipsis marker" rule for Observation events (spec.md
// §4.5 step 2).
func TruncateWithEllipsis(s string, limit int) string {
	if limit <= 0 || len([]rune(s)) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "…"
}
