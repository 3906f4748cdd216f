package mlog

// NoneLogger is a Logger that discards everything. Used as the default when no
// logger has been installed in the context, and in tests that don't care about output.
type NoneLogger struct{}

func (l *NoneLogger) Info(_ ...any)            {}
func (l *NoneLogger) Infof(_ string, _ ...any) {}

func (l *NoneLogger) Error(_ ...any)            {}
func (l *NoneLogger) Errorf(_ string, _ ...any) {}

func (l *NoneLogger) Warn(_ ...any)            {}
func (l *NoneLogger) Warnf(_ string, _ ...any) {}

func (l *NoneLogger) Debug(_ ...any)            {}
func (l *NoneLogger) Debugf(_ string, _ ...any) {}

func (l *NoneLogger) Fatal(_ ...any)            {}
func (l *NoneLogger) Fatalf(_ string, _ ...any) {}

//nolint:ireturn
func (l *NoneLogger) WithFields(_ ...any) Logger { return l }

func (l *NoneLogger) Sync() error { return nil }
