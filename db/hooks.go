package db

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ─────────────────────────────────────────────────────────────────────────────
// Hook interface
// ─────────────────────────────────────────────────────────────────────────────

// Hook is called before and after every statement execution.
// Both methods receive the same context, query, and args.
//
// Implementations MUST be goroutine-safe and SHOULD be non-blocking.
// Panics inside a hook are recovered by the hook chain and logged.
type Hook interface {
	// BeforeQuery is invoked immediately before the statement is sent to the
	// database driver.
	BeforeQuery(ctx context.Context, query string, args []any)

	// AfterQuery is invoked after the driver returns. duration is the
	// wall-clock time spent in the driver call. err is the (already mapped)
	// error returned to the caller — nil on success.
	AfterQuery(ctx context.Context, query string, args []any, duration time.Duration, err error)
}

// ─────────────────────────────────────────────────────────────────────────────
// hookChain — internal dispatcher
// ─────────────────────────────────────────────────────────────────────────────

type hookChain struct {
	hooks []Hook
}

func newHookChain(hooks []Hook) hookChain {
	filtered := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return hookChain{hooks: filtered}
}

func (c hookChain) Before(ctx context.Context, query string, args []any) {
	for _, h := range c.hooks {
		safeBeforeQuery(h, ctx, query, args)
	}
}

func (c hookChain) After(ctx context.Context, query string, args []any, d time.Duration, err error) {
	for _, h := range c.hooks {
		safeAfterQuery(h, ctx, query, args, d, err)
	}
}

func safeBeforeQuery(h Hook, ctx context.Context, query string, args []any) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("tablewatch/db: hook panic in BeforeQuery")
		}
	}()
	h.BeforeQuery(ctx, query, args)
}

func safeAfterQuery(h Hook, ctx context.Context, query string, args []any, d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("tablewatch/db: hook panic in AfterQuery")
		}
	}()
	h.AfterQuery(ctx, query, args, d, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Logging hook
// ─────────────────────────────────────────────────────────────────────────────

// LogHookConfig configures the logging hook.
type LogHookConfig struct {
	// Logger defaults to logrus.StandardLogger() if nil.
	Logger logrus.FieldLogger
	// SlowQueryThreshold logs a warning when duration exceeds this value.
	// Zero disables slow-query logging.
	SlowQueryThreshold time.Duration
	// LogArgs includes bound parameters in log entries (disable in prod if
	// args may contain PII).
	LogArgs bool
}

// NewLogHook returns a Hook that emits leveled log entries via logrus.
func NewLogHook(cfg LogHookConfig) Hook {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &logHook{cfg: cfg, logger: logger}
}

type logHook struct {
	cfg    LogHookConfig
	logger logrus.FieldLogger
}

func (h *logHook) BeforeQuery(_ context.Context, _ string, _ []any) {}

func (h *logHook) AfterQuery(_ context.Context, query string, args []any, d time.Duration, err error) {
	entry := h.logger.WithFields(logrus.Fields{
		"query":    trimQuery(query),
		"duration": d,
	})
	if h.cfg.LogArgs && len(args) > 0 {
		entry = entry.WithField("args", args)
	}

	if err != nil {
		entry.WithError(err).Error("query error")
		return
	}

	if h.cfg.SlowQueryThreshold > 0 && d > h.cfg.SlowQueryThreshold {
		entry.Warn("slow query")
		return
	}

	entry.Debug("query")
}

func trimQuery(q string) string {
	if len(q) > 500 {
		return q[:500] + "…"
	}
	return q
}

// ─────────────────────────────────────────────────────────────────────────────
// Composite hook helper
// ─────────────────────────────────────────────────────────────────────────────

// CompositeHook combines multiple hooks into one. Useful when you need to pass
// a single Hook value but want multiple behaviours.
func CompositeHook(hooks ...Hook) Hook { return &compositeHook{hooks: hooks} }

type compositeHook struct{ hooks []Hook }

func (c *compositeHook) BeforeQuery(ctx context.Context, q string, args []any) {
	for _, h := range c.hooks {
		h.BeforeQuery(ctx, q, args)
	}
}
func (c *compositeHook) AfterQuery(ctx context.Context, q string, args []any, d time.Duration, err error) {
	for _, h := range c.hooks {
		h.AfterQuery(ctx, q, args, d, err)
	}
}
