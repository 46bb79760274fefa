// Package calllog implements the Call Logger: an insert-only observability
// sink invoked by the Scene Resolution Engine; LLM collaborator calls are
// not logged here. Logging is best-effort and must never degrade
// the correctness of a resolve.
package calllog

import (
	"context"
	"log/slog"

	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

// Logger emits CallLog rows.
type Logger struct {
	logger *slog.Logger
}

// New returns a Logger. A nil *slog.Logger falls back to slog.Default(),
// for call sites that have no explicit logger threaded through.
func New(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// Log inserts c within tx. On failure it logs a warning and swallows the
// error: the caller's transaction and return value must not depend on the
// log write succeeding.
func (l *Logger) Log(ctx context.Context, tx store.Tx, c *domain.CallLog) {
	if err := tx.InsertCallLog(ctx, c); err != nil {
		l.logger.Warn("call log insert failed",
			"scene_id", derefOr(c.SceneID, ""),
			"prompt_id", derefOr(c.PromptID, ""),
			"error", err,
		)
	}
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
