package cachewire

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/cachewire/wire"
	"github.com/rs/zerolog"
)

var ErrServerClosed = errors.New("cachewire: server closed")

// ServerConfig holds the server settings. Start from DefaultServerConfig.
type ServerConfig struct {
	// Addr is the TCP address ListenAndServe listens on.
	Addr string

	// MaxConnections bounds the connections served at once; more are closed on accept.
	// Zero means no limit.
	MaxConnections int

	// MaxMessages and MaxBytes size the flow gate shared by all connections: the number
	// of requests received and not yet answered, and the sum of their payload lengths.
	// Zero disables the limit.
	MaxMessages int64
	MaxBytes    int64

	// CheckInterval bounds one flow gate wait iteration.
	CheckInterval time.Duration

	// BufferSize is the comm buffer size of each connection.
	BufferSize int

	// HeaderReadTimeout closes connections that send no request header for this long.
	// Zero waits indefinitely.
	HeaderReadTimeout time.Duration

	// ReadTimeout is the budget for obtaining flow gate permits for one request.
	// Zero waits indefinitely.
	ReadTimeout time.Duration

	// MaxIncomingLength rejects requests with a larger payload. Zero disables it.
	MaxIncomingLength int

	// MaxMessageSize bounds responses.
	MaxMessageSize int

	Version wire.Version

	// Stats receives the byte accounting of every connection. May be nil.
	Stats wire.Stats

	// Metrics records handled requests. When Stats is nil, Metrics also serves as Stats.
	Metrics *Metrics

	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger

	// SecurePartProvider, when set, supplies the secure part of every response.
	SecurePartProvider wire.SecurePartProvider
}

// DefaultServerConfig returns the settings used when a field is left unset.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           ":40404",
		MaxConnections: 800,
		CheckInterval:  wire.DefaultCheckInterval,
		BufferSize:     32 * 1024,
		MaxMessageSize: wire.DefaultMaxMessageSize,
		Version:        wire.CurrentVersion,
	}
}

func (c ServerConfig) withDefaults() ServerConfig {
	d := DefaultServerConfig()
	if c.CheckInterval <= 0 {
		c.CheckInterval = d.CheckInterval
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.Version.IsZero() {
		c.Version = d.Version
	}
	if c.Stats == nil && c.Metrics != nil {
		c.Stats = c.Metrics
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}

// Server accepts connections and answers each request with its Handler.
// Requests on one connection are processed in order.
type Server struct {
	config  ServerConfig
	handler Handler
	gate    *wire.FlowGate
	logger  zerolog.Logger

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[*Connection]struct{}
	closing   atomic.Bool
	wg        sync.WaitGroup

	stats serverStatsCollector
}

func NewServer(config ServerConfig, handler Handler) *Server {
	config = config.withDefaults()

	s := &Server{
		config:    config,
		handler:   handler,
		logger:    *config.Logger,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*Connection]struct{}),
	}
	if config.MaxMessages > 0 || config.MaxBytes > 0 {
		s.gate = wire.NewFlowGate(wire.FlowGateConfig{
			MaxMessages:   config.MaxMessages,
			MaxBytes:      config.MaxBytes,
			CheckInterval: config.CheckInterval,
		})
	}
	return s
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown. It always returns a non-nil error;
// after Shutdown it is ErrServerClosed.
func (s *Server) Serve(l net.Listener) error {
	if !s.trackListener(l, true) {
		_ = l.Close()
		return ErrServerClosed
	}
	defer s.trackListener(l, false)

	s.logger.Info().Str("addr", l.Addr().String()).Msg("serving")

	var tempDelay time.Duration
	for {
		netConn, err := l.Accept()
		if err != nil {
			if s.closing.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = min(max(2*tempDelay, 5*time.Millisecond), time.Second)
				s.logger.Warn().Err(err).Dur("retry_in", tempDelay).Msg("accept failed")
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		if limit := s.config.MaxConnections; limit > 0 && s.stats.active.Load() >= int64(limit) {
			s.stats.rejected.Add(1)
			s.logger.Warn().Str("remote", netConn.RemoteAddr().String()).Int("max", limit).Msg("connection limit reached")
			_ = netConn.Close()
			continue
		}

		conn := NewConnection(netConn, s.config.BufferSize, s.config.Stats)
		if !s.trackConn(conn, true) {
			_ = conn.Close()
			return ErrServerClosed
		}
		s.stats.accepted.Add(1)
		s.stats.active.Add(1)

		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// Shutdown stops accepting connections and reading new requests. Requests already
// received are answered. When ctx ends first, the remaining network connections are closed and
// ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)

	s.mu.Lock()
	for l := range s.listeners {
		_ = l.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		// Wakes connections blocked reading; a receive started after this resets the
		// deadline, hence the polling.
		s.interruptReads()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			// only the transport: the comm buffer belongs to serveConn until it returns
			s.mu.Lock()
			for c := range s.conns {
				_ = c.Conn.Close()
			}
			s.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Addrs returns the addresses of the listeners being served.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]net.Addr, 0, len(s.listeners))
	for l := range s.listeners {
		addrs = append(addrs, l.Addr())
	}
	return addrs
}

// Stats returns a snapshot of server statistics.
func (s *Server) Stats() ServerStats {
	return s.stats.snapshot()
}

func (s *Server) interruptReads() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.SetReadDeadline(time.Now())
	}
}

func (s *Server) trackListener(l net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closing.Load() {
			return false
		}
		s.listeners[l] = struct{}{}
	} else {
		delete(s.listeners, l)
	}
	return true
}

// trackConn registers c with the wait group under mu, so Shutdown never waits on a
// group that can still grow.
func (s *Server) trackConn(c *Connection, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closing.Load() {
			return false
		}
		s.conns[c] = struct{}{}
		s.wg.Add(1)
	} else {
		delete(s.conns, c)
	}
	return true
}

func (s *Server) cancelCriterion() error {
	if s.closing.Load() {
		return ErrServerClosed
	}
	return nil
}

func (s *Server) serveConn(conn *Connection) {
	logger := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()

	req := wire.NewMessage(0, s.config.Version)
	resp := wire.NewMessage(0, s.config.Version)
	resp.SetMaxMessageSize(s.config.MaxMessageSize)
	conn.Bind(req)
	conn.Bind(resp)
	if s.config.SecurePartProvider != nil {
		resp.SetSecurePartProvider(s.config.SecurePartProvider)
	}

	defer func() {
		req.Clear()
		resp.Clear()
		req.Unbind()
		resp.Unbind()
		s.trackConn(conn, false)
		_ = conn.Close()
		s.stats.active.Add(-1)
	}()

	opts := wire.ReceiveOptions{
		HeaderReadTimeout: s.config.HeaderReadTimeout,
		Gate:              s.gate,
		Timeout:           s.config.ReadTimeout,
		MaxIncomingLength: s.config.MaxIncomingLength,
		Cancel:            s.cancelCriterion,
	}
	ctx := context.Background()

	for !s.closing.Load() {
		if err := req.ReceiveWith(ctx, opts); err != nil {
			s.logReceiveError(logger, err)
			return
		}

		err := s.respond(ctx, logger, req, resp)
		req.Clear()
		if err != nil {
			logger.Debug().Err(err).Msg("sending response failed")
			return
		}
	}
}

// respond runs the handler for req and sends its answer, or an exception message
// when the handler fails or its answer is too large to send.
func (s *Server) respond(ctx context.Context, logger zerolog.Logger, req, resp *wire.Message) error {
	start := time.Now()
	s.stats.messages.Add(1)

	resp.Clear()
	resp.SetMessageType(wire.Reply)
	resp.SetNumberOfParts(0)
	resp.SetTransactionID(req.TransactionID())

	outcome := outcomeOK
	err := s.handler.Serve(ctx, req, resp)
	if err == nil {
		err = resp.Send(ctx)
		var tooLarge *wire.MessageTooLargeError
		if !errors.As(err, &tooLarge) {
			s.recordHandled(req, outcome, start)
			return err
		}
	}

	outcome = outcomeException
	s.stats.exceptions.Add(1)
	logger.Debug().Err(err).Stringer("type", req.MessageType()).Int32("txid", req.TransactionID()).Bool("retry", req.IsRetry()).Msg("request failed")

	resp.SetMessageType(wire.Exception)
	resp.SetNumberOfParts(1)
	resp.AddStringPart(err.Error(), false)
	err = resp.Send(ctx)
	s.recordHandled(req, outcome, start)
	return err
}

func (s *Server) recordHandled(req *wire.Message, outcome string, start time.Time) {
	if s.config.Metrics != nil {
		s.config.Metrics.recordHandled(req.MessageType().String(), outcome, time.Since(start))
	}
}

func (s *Server) logReceiveError(logger zerolog.Logger, err error) {
	var (
		reset    *wire.ConnectionResetError
		protoErr *wire.ProtocolError
		connErr  *wire.ConnectionError
	)
	switch {
	case s.closing.Load() || errors.Is(err, ErrServerClosed):
		logger.Debug().Err(err).Msg("connection closed on shutdown")
	case errors.As(err, &reset) && reset.Op == "header":
		logger.Debug().Msg("connection closed by peer")
	case errors.As(err, &protoErr):
		s.stats.protocolError.Add(1)
		logger.Warn().Err(err).Msg("closing connection on protocol error")
	case wire.IsResourceExhausted(err):
		s.stats.gateTimeouts.Add(1)
		logger.Warn().Err(err).Msg("closing connection waiting on flow gate")
	case errors.As(err, &connErr) && isTimeout(connErr.Err):
		logger.Debug().Msg("closing idle connection")
	default:
		logger.Info().Err(err).Msg("closing connection")
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
