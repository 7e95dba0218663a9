package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Logger — общий интерфейс логирования сервиса.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(err error, format string, args ...any)
	// With возвращает логгер с дополнительными полями (ключ, значение, ...).
	With(keysAndValues ...any) Logger
	Sync()
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger создаёт логгер поверх zap. mode "prod"/"production" включает JSON-конфигурацию.
func NewZapLogger(mode string) (Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &zapLogger{sugar: l.Sugar()}, nil
}

// NewNop возвращает логгер, который ничего не пишет. Используется в тестах.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debugf(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *zapLogger) Infof(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *zapLogger) Warnf(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *zapLogger) Errorf(err error, format string, args ...any) {
	l.sugar.With(zap.Error(err)).Errorf(format, args...)
}

func (l *zapLogger) With(keysAndValues ...any) Logger {
	return &zapLogger{sugar: l.sugar.With(keysAndValues...)}
}

func (l *zapLogger) Sync() {
	_ = l.sugar.Sync()
}

