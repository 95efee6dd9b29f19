// Package logging embrulha log/slog com a configuração usada pelos binários
// e um transporte via context.Context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const loggerKey ctxKey = "logger"

type Logger struct {
	*slog.Logger
}

// New cria um logger em stdout. format "text" usa TextHandler; qualquer outro valor, JSON.
func New(format string, level slog.Level) *Logger {
	return NewWithWriter(os.Stdout, format, level)
}

func NewWithWriter(w io.Writer, format string, level slog.Level) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{slog.New(handler)}
}

// Nop descarta tudo. Padrão das bibliotecas quando nenhum logger é configurado.
func Nop() *Logger {
	return &Logger{slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// ParseLevel aceita debug, info, warn e error. Qualquer outro valor vira info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Nop()
}

func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}
