package maintenance

import (
	"go.uber.org/zap"
)

// cronLogger routes gocron's key-value logging through zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func newCronLogger(logger *zap.Logger) cronLogger {
	return cronLogger{sugar: logger.Named("gocron").Sugar()}
}

func (l cronLogger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

func (l cronLogger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

func (l cronLogger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

func (l cronLogger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}
