package glove

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/teslashibe/go-handscore/internal/session"
)

// SerialConfig configures the serial glove source
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration

	MaxConsecutiveErrors int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration

	// StaleAfter marks the source unhealthy when no valid line arrived for this long
	StaleAfter time.Duration
}

// DefaultSerialConfig returns 115200 baud with a one second read timeout
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Port:                 "/dev/ttyACM0",
		BaudRate:             115200,
		ReadTimeout:          time.Second,
		MaxConsecutiveErrors: 5,
		InitialBackoff:       100 * time.Millisecond,
		MaxBackoff:           5 * time.Second,
		StaleAfter:           3 * time.Second,
	}
}

// opener returns a fresh byte stream for the reader loop
type opener func() (io.ReadCloser, error)

// SerialSource reads firmware lines on a background goroutine and hands the
// newest parsed vector to Next through a single-slot buffer.
type SerialSource struct {
	cfg    SerialConfig
	logger *slog.Logger
	open   opener

	slot session.Slot

	mu                sync.Mutex
	port              io.ReadCloser
	closed            bool
	healthy           bool
	consecutiveErrors int
	lastError         error
	lastErrorTime     time.Time
	lastReading       time.Time
	lines             int64
	rejected          int64
	backoff           time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSerialSource opens the configured port and starts reading
func NewSerialSource(cfg SerialConfig, logger *slog.Logger) (*SerialSource, error) {
	open := func() (io.ReadCloser, error) {
		return openPort(cfg)
	}

	port, err := open()
	if err != nil {
		return nil, err
	}

	s := newSerialSource(cfg, logger, open, port)
	s.logger.Info("serial glove source initialized",
		"port", cfg.Port,
		"baud_rate", cfg.BaudRate,
	)
	return s, nil
}

func openPort(cfg SerialConfig) (io.ReadCloser, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open glove port %s: %w", cfg.Port, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
		}
	}
	return port, nil
}

func newSerialSource(cfg SerialConfig, logger *slog.Logger, open opener, port io.ReadCloser) *SerialSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConsecutiveErrors < 1 {
		cfg.MaxConsecutiveErrors = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SerialSource{
		cfg:     cfg,
		logger:  logger,
		open:    open,
		port:    port,
		healthy: true,
		backoff: cfg.InitialBackoff,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.readLoop(ctx)
	return s
}

func (s *SerialSource) readLoop(ctx context.Context) {
	defer close(s.done)

	for ctx.Err() == nil {
		port, err := s.currentPort(ctx)
		if err != nil {
			continue
		}

		scanner := bufio.NewScanner(port)
		for scanner.Scan() {
			s.handleLine(scanner.Text())
		}

		err = scanner.Err()
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.ErrNoProgress):
			// read timeouts with no data; the port is still open
			continue
		case err == nil:
			err = io.EOF
		}

		s.mu.Lock()
		s.recordError(err)
		s.mu.Unlock()
	}
}

// currentPort returns the open port, reopening with backoff when needed
func (s *SerialSource) currentPort(ctx context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	port, backoff := s.port, s.backoff
	s.mu.Unlock()
	if port != nil {
		return port, nil
	}

	s.logger.Info("attempting glove reconnect", "backoff", backoff)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(backoff):
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Increase backoff for next attempt
	s.backoff *= 2
	if s.backoff > s.cfg.MaxBackoff {
		s.backoff = s.cfg.MaxBackoff
	}

	if s.closed {
		return nil, errors.New("source closed")
	}
	port, err := s.open()
	if err != nil {
		s.logger.Warn("glove reconnect failed", "error", err)
		s.lastError = err
		s.lastErrorTime = time.Now()
		return nil, err
	}

	s.logger.Info("glove reconnect successful")
	s.port = port
	return port, nil
}

func (s *SerialSource) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	v, ok := ParseLine(line)

	s.mu.Lock()
	s.lines++
	if !ok {
		s.rejected++
		s.mu.Unlock()
		s.logger.Debug("incomplete glove line", "line", line)
		return
	}
	now := time.Now()
	s.lastReading = now
	s.recordSuccess()
	s.mu.Unlock()

	s.slot.Put(session.Detected(v, now))
}

func (s *SerialSource) recordError(err error) {
	s.consecutiveErrors++
	s.lastError = err
	s.lastErrorTime = time.Now()

	if s.consecutiveErrors >= s.cfg.MaxConsecutiveErrors {
		s.healthy = false
		s.logger.Warn("glove source marked unhealthy, will attempt reconnect",
			"consecutive_errors", s.consecutiveErrors,
			"last_error", err,
		)
	}

	// Close port to force reconnect on next pass
	if s.port != nil {
		s.port.Close()
		s.port = nil
	}
}

func (s *SerialSource) recordSuccess() {
	if s.consecutiveErrors > 0 {
		s.logger.Info("glove source recovered",
			"previous_errors", s.consecutiveErrors,
		)
	}
	s.consecutiveErrors = 0
	s.healthy = true
	s.backoff = s.cfg.InitialBackoff
}

// Next returns the newest unread reading, or a missing observation when the
// glove sent nothing new since the last call.
func (s *SerialSource) Next(ctx context.Context) (session.Observation, error) {
	if err := ctx.Err(); err != nil {
		return session.Observation{}, err
	}
	if obs, ok := s.slot.Take(); ok {
		return obs, nil
	}
	return session.Missing(time.Now()), nil
}

// Close stops the reader and releases the port
func (s *SerialSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.port != nil {
		err = s.port.Close()
		s.port = nil
	}
	s.mu.Unlock()

	s.cancel()
	<-s.done

	s.logger.Info("serial glove source closed")
	return err
}

// Healthy returns true while lines keep arriving and the port is open
func (s *SerialSource) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy || s.closed {
		return false
	}
	if s.cfg.StaleAfter > 0 && !s.lastReading.IsZero() && time.Since(s.lastReading) > s.cfg.StaleAfter {
		return false
	}
	return true
}

// Name returns the source type name
func (s *SerialSource) Name() string {
	return "serial"
}

// Stats returns serial source statistics
func (s *SerialSource) Stats() SerialStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr string
	if s.lastError != nil {
		lastErr = s.lastError.Error()
	}

	return SerialStats{
		Healthy:           s.healthy,
		ConsecutiveErrors: s.consecutiveErrors,
		LastError:         lastErr,
		LastErrorTime:     s.lastErrorTime,
		LastReading:       s.lastReading,
		Lines:             s.lines,
		Rejected:          s.rejected,
		PortOpen:          s.port != nil,
	}
}

// SerialStats contains serial source statistics
type SerialStats struct {
	Healthy           bool      `json:"healthy"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastError         string    `json:"last_error,omitempty"`
	LastErrorTime     time.Time `json:"last_error_time,omitempty"`
	LastReading       time.Time `json:"last_reading,omitempty"`
	Lines             int64     `json:"lines"`
	Rejected          int64     `json:"rejected"`
	PortOpen          bool      `json:"port_open"`
}
