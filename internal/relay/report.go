package relay

import (
	"context"
	"log/slog"
)

// Report writes the structured log entry for a decision. Only the redacted
// payload is logged. Cancelled or failed flows are logged as warnings.
func Report(ctx context.Context, logger *slog.Logger, d *Decision) {
	if logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("kind", string(d.Kind)),
		slog.String("destination", d.SafeTarget),
		slog.String("scheme", d.Scheme),
		slog.Bool("dev_mode", d.DevMode),
		slog.Bool("test_mode", d.TestMode),
		slog.String("outcome", string(d.Outcome)),
		slog.Any("params", d.Redacted),
	}

	if d.Payload.Len() == 0 {
		logger.LogAttrs(ctx, slog.LevelWarn, "Auth redirect received without parameters, authorization was likely cancelled", attrs...)
		return
	}
	if !d.Outcome.Healthy() {
		logger.LogAttrs(ctx, slog.LevelWarn, "Auth redirect received without credentials", attrs...)
		return
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Auth redirect received", attrs...)
}
