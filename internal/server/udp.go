package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skypro1111/studentmarks-service/internal/config"
	"github.com/skypro1111/studentmarks-service/internal/metrics"
	"github.com/skypro1111/studentmarks-service/internal/protocol"
)

// UDPResponder answers mark-list requests with a fixed record set.
// It plays the remote server's role for local development and tests.
type UDPResponder struct {
	conn    *net.UDPConn
	config  *config.MarkListConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Encoded reply, rebuilt by SetRecords
	reply []byte

	requestsReceived uint64
	repliesSent      uint64
	invalidRequests  uint64
	mu               sync.RWMutex
}

// ResponderStatistics represents responder counters
type ResponderStatistics struct {
	RequestsReceived uint64 `json:"requests_received"`
	RepliesSent      uint64 `json:"replies_sent"`
	InvalidRequests  uint64 `json:"invalid_requests"`
}

// NewUDPResponder creates a responder serving cfg.Records
func NewUDPResponder(cfg *config.MarkListConfig, logger *slog.Logger, m *metrics.Metrics) (*UDPResponder, error) {
	ctx, cancel := context.WithCancel(context.Background())

	r := &UDPResponder{
		config:  cfg,
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := r.SetRecords(cfg.Records); err != nil {
		cancel()
		return nil, err
	}

	return r, nil
}

// SetRecords replaces the record set served to subsequent requests
func (r *UDPResponder) SetRecords(records []protocol.StudentRecord) error {
	reply, err := protocol.EncodeResponse(records)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	r.mu.Lock()
	r.reply = reply
	r.mu.Unlock()

	return nil
}

// Start begins listening for requests
func (r *UDPResponder) Start() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(r.config.BindAddress, fmt.Sprint(r.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	r.conn = conn

	r.logger.Info("Mark-list responder started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("records", len(r.config.Records)),
	)

	r.wg.Add(1)
	go r.receiveLoop()

	return nil
}

// Addr returns the bound local address, useful when listening on port 0
func (r *UDPResponder) Addr() *net.UDPAddr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Stop gracefully stops the responder
func (r *UDPResponder) Stop() error {
	r.logger.Info("Stopping mark-list responder...")

	r.cancel()

	// Close UDP connection to unblock the receive loop
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	r.wg.Wait()

	stats := r.GetStatistics()
	r.logger.Info("Mark-list responder stopped",
		slog.Uint64("requests_received", stats.RequestsReceived),
		slog.Uint64("replies_sent", stats.RepliesSent),
		slog.Uint64("invalid_requests", stats.InvalidRequests),
	)

	return nil
}

// receiveLoop is the main request receiving loop
func (r *UDPResponder) receiveLoop() {
	defer r.wg.Done()

	// One byte larger than a request so oversized datagrams are detectable
	buffer := make([]byte, protocol.RequestSize+1)

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		// Set read deadline to check for context cancellation periodically
		if err := r.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			select {
			case <-r.ctx.Done():
				return
			default:
			}
			r.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := r.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-r.ctx.Done():
				return
			default:
				r.logger.Error("Failed to read UDP datagram", slog.String("error", err.Error()))
				continue
			}
		}

		r.handleRequest(buffer[:n], remoteAddr)
	}
}

// handleRequest replies to a single datagram
func (r *UDPResponder) handleRequest(data []byte, remoteAddr *net.UDPAddr) {
	valid := protocol.IsRequest(data)
	r.metrics.RecordResponderRequest(valid)

	r.mu.Lock()
	r.requestsReceived++
	if !valid {
		r.invalidRequests++
	}
	reply := r.reply
	r.mu.Unlock()

	if !valid {
		r.logger.Warn("Ignoring invalid request",
			slog.String("remote_addr", remoteAddr.String()),
			slog.Int("size", len(data)),
		)
		return
	}

	if _, err := r.conn.WriteToUDP(reply, remoteAddr); err != nil {
		r.logger.Error("Failed to send reply",
			slog.String("remote_addr", remoteAddr.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	r.mu.Lock()
	r.repliesSent++
	r.mu.Unlock()
	r.metrics.RecordReplySent()

	r.logger.Debug("Mark list sent",
		slog.String("remote_addr", remoteAddr.String()),
		slog.Int("reply_size", len(reply)),
	)
}

// GetStatistics returns current responder statistics
func (r *UDPResponder) GetStatistics() ResponderStatistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return ResponderStatistics{
		RequestsReceived: r.requestsReceived,
		RepliesSent:      r.repliesSent,
		InvalidRequests:  r.invalidRequests,
	}
}
