// Package logging bridges zerolog to the circulation logging ports.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements the circulation Logger and ContextualLogger
// ports on top of a zerolog.Logger. Args are interpreted as alternating
// key/value pairs, slog style.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter wraps an existing zerolog logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// NewDefaultAdapter builds a production logger writing JSON to w at the
// given level. Unknown level strings fall back to info.
func NewDefaultAdapter(w io.Writer, level string) *ZerologAdapter {
	parsed, parseErr := zerolog.ParseLevel(strings.ToLower(level))
	if parseErr != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	if w == nil {
		w = os.Stderr
	}

	return NewZerologAdapter(zerolog.New(w).Level(parsed).With().Timestamp().Logger())
}

func (a *ZerologAdapter) Debug(msg string, args ...any) {
	a.emit(a.logger.Debug(), msg, args)
}

func (a *ZerologAdapter) Info(msg string, args ...any) {
	a.emit(a.logger.Info(), msg, args)
}

func (a *ZerologAdapter) Warn(msg string, args ...any) {
	a.emit(a.logger.Warn(), msg, args)
}

func (a *ZerologAdapter) Error(msg string, args ...any) {
	a.emit(a.logger.Error(), msg, args)
}

func (a *ZerologAdapter) DebugContext(ctx context.Context, msg string, args ...any) {
	a.emit(a.logger.Debug().Ctx(ctx), msg, args)
}

func (a *ZerologAdapter) InfoContext(ctx context.Context, msg string, args ...any) {
	a.emit(a.logger.Info().Ctx(ctx), msg, args)
}

func (a *ZerologAdapter) WarnContext(ctx context.Context, msg string, args ...any) {
	a.emit(a.logger.Warn().Ctx(ctx), msg, args)
}

func (a *ZerologAdapter) ErrorContext(ctx context.Context, msg string, args ...any) {
	a.emit(a.logger.Error().Ctx(ctx), msg, args)
}

// emit attaches the key/value pairs and fires the event. A trailing key
// without a value is logged under the "arg" field rather than dropped.
func (a *ZerologAdapter) emit(event *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}

		event = event.Any(key, args[i+1])
	}

	if len(args)%2 != 0 {
		event = event.Any("arg", args[len(args)-1])
	}

	event.Msg(msg)
}
