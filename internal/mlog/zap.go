package mlog

import "go.uber.org/zap"

// ZapLogger is the zap-backed implementation of Logger used in every process entrypoint.
type ZapLogger struct {
	Sugar *zap.SugaredLogger
}

// NewZapLogger builds a ZapLogger at the given level ("debug", "info", "warn", "error").
func NewZapLogger(level string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.Level = lvl

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &ZapLogger{Sugar: logger.Sugar()}, nil
}

func (l *ZapLogger) Info(args ...any)            { l.Sugar.Info(args...) }
func (l *ZapLogger) Infof(f string, args ...any) { l.Sugar.Infof(f, args...) }

func (l *ZapLogger) Error(args ...any)            { l.Sugar.Error(args...) }
func (l *ZapLogger) Errorf(f string, args ...any) { l.Sugar.Errorf(f, args...) }

func (l *ZapLogger) Warn(args ...any)            { l.Sugar.Warn(args...) }
func (l *ZapLogger) Warnf(f string, args ...any) { l.Sugar.Warnf(f, args...) }

func (l *ZapLogger) Debug(args ...any)            { l.Sugar.Debug(args...) }
func (l *ZapLogger) Debugf(f string, args ...any) { l.Sugar.Debugf(f, args...) }

func (l *ZapLogger) Fatal(args ...any)            { l.Sugar.Fatal(args...) }
func (l *ZapLogger) Fatalf(f string, args ...any) { l.Sugar.Fatalf(f, args...) }

//nolint:ireturn
func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{Sugar: l.Sugar.With(fields...)}
}

func (l *ZapLogger) Sync() error { return l.Sugar.Sync() }
