package obs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the zap preset and the fields stamped on every entry.
type LogConfig struct {
	Level   string
	Pretty  bool
	Service string
	Env     string
	Version string
}

// NewLogger builds a production logger, or a development one when Pretty is
// set. Unknown levels fall back to info.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	var cfg zap.Config
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(c.Level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build(
		zap.Fields(
			zap.String("service", c.Service),
			zap.String("env", c.Env),
			zap.String("version", c.Version),
		),
	)
}

// ParseLevel maps a level name to a zapcore.Level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.Set(s); err != nil {
		return zapcore.InfoLevel
	}
	return level
}
