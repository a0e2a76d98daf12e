package logging

import (
	"context"
	"log/slog"
	"os"

	glog "github.com/goliatone/go-logger/glog"
)

// exit is replaced in tests.
var exit = os.Exit

// slogAdapter satisfies glog.Logger on top of a *slog.Logger.
type slogAdapter struct {
	l   *slog.Logger
	ctx context.Context
}

// Glog adapts l to glog.Logger. A nil logger yields glog.Nop().
func Glog(l *slog.Logger) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	return &slogAdapter{l: l, ctx: context.Background()}
}

func (a *slogAdapter) log(level slog.Level, msg string, args ...any) {
	a.l.Log(a.ctx, level, msg, args...)
}

func (a *slogAdapter) Trace(msg string, args ...any) { a.log(LevelTrace, msg, args...) }
func (a *slogAdapter) Debug(msg string, args ...any) { a.log(slog.LevelDebug, msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.log(slog.LevelInfo, msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.log(slog.LevelWarn, msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.log(slog.LevelError, msg, args...) }

func (a *slogAdapter) Fatal(msg string, args ...any) {
	a.log(LevelFatal, msg, args...)
	exit(1)
}

func (a *slogAdapter) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &slogAdapter{l: a.l, ctx: ctx}
}

// Provider hands out named glog loggers derived from one slog logger.
type Provider struct {
	l *slog.Logger
}

// NewProvider returns a Provider over l.
func NewProvider(l *slog.Logger) *Provider {
	return &Provider{l: l}
}

// GetLogger returns a logger tagged with component=name.
func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.l == nil {
		return glog.Nop()
	}
	return Glog(p.l.With("component", name))
}

var (
	_ glog.Logger         = (*slogAdapter)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
