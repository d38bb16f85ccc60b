package glove

import (
	"log/slog"

	"github.com/teslashibe/go-handscore/internal/session"
)

// NewSource opens the serial glove
func NewSource(cfg SerialConfig, logger *slog.Logger) (session.Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	src, err := NewSerialSource(cfg, logger)
	if err != nil {
		logger.Warn("serial glove unavailable",
			"error", err,
			"hint", "check the port name and that the glove is plugged in",
		)
		return nil, err
	}
	return src, nil
}

// NewSourceWithFallback opens the serial glove, falling back to a waving mock.
// Use this for development when hardware is unavailable.
func NewSourceWithFallback(cfg SerialConfig, logger *slog.Logger) session.Source {
	if logger == nil {
		logger = slog.Default()
	}

	source, err := NewSource(cfg, logger)
	if err == nil {
		return source
	}

	logger.Warn("using mock glove source - no hardware available")
	return NewMockSourceWithWave()
}
