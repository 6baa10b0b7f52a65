// Package agent implements the reference management agent. It speaks the
// newline-delimited JSON protocol consumed by the transport client and
// returns canned command output, which is enough for end-to-end wiring and
// tests without a real infrastructure backend. Server status can optionally
// report live host metrics.
package agent

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Config holds agent listener settings
type Config struct {
	Addr string
	// LiveStats switches GET_SERVER_STATUS from canned values to metrics
	// sampled from the local host.
	LiveStats bool
}

// Server accepts agent connections and answers status and command requests
type Server struct {
	logger *zap.Logger
	config Config

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer creates an agent server. Call Start to begin listening.
func NewServer(config Config, logger *zap.Logger) *Server {
	return &Server{
		logger: logger.Named("agent"),
		config: config,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and serves connections in the background. Use an
// addr with port 0 to bind an ephemeral port for tests.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("Agent listening", zap.String("addr", listener.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Addr returns the bound listener address
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and all open connections
func (s *Server) Stop() {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Agent stopped")
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn handles one client connection until it closes
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	s.logger.Info("Connection from", zap.String("remote", conn.RemoteAddr().String()))

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var request map[string]interface{}
		if err := dec.Decode(&request); err != nil {
			return
		}

		response := s.handleRequest(request)
		if err := enc.Encode(response); err != nil {
			s.logger.Warn("Failed to write response", zap.Error(err))
			return
		}
	}
}

// handleRequest builds the response frame for one request
func (s *Server) handleRequest(request map[string]interface{}) map[string]interface{} {
	requestType, _ := request["type"].(string)

	switch requestType {
	case "GET_SERVER_STATUS":
		serverID, _ := request["server_id"].(string)
		if serverID == "" {
			serverID = "unknown"
		}
		return map[string]interface{}{
			"response_to":   requestType,
			"status":        "ok",
			"server_id":     serverID,
			"server_status": s.serverStatus(),
		}

	case "EXECUTE_COMMAND":
		serverID, _ := request["server_id"].(string)
		if serverID == "" {
			serverID = "unknown"
		}
		command, _ := request["command"].(string)
		return map[string]interface{}{
			"response_to": requestType,
			"status":      "ok",
			"server_id":   serverID,
			"output":      fmt.Sprintf("Executed '%s' successfully", command),
		}
	}

	if requestType == "" {
		requestType = "UNKNOWN"
	}
	return map[string]interface{}{
		"response_to": requestType,
		"status":      "error",
		"message":     "Unsupported request type",
	}
}

// serverStatus reports host metrics, live when configured and available,
// canned otherwise.
func (s *Server) serverStatus() map[string]interface{} {
	if s.config.LiveStats {
		if status, err := liveStatus(); err == nil {
			return status
		} else {
			s.logger.Warn("Failed to sample host stats, using canned status", zap.Error(err))
		}
	}
	return map[string]interface{}{
		"cpu":    "10%",
		"memory": "512Mi",
		"uptime": "2d 4h",
	}
}

func liveStatus() (map[string]interface{}, error) {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sample cpu: %w", err)
	}
	if len(percents) == 0 {
		return nil, fmt.Errorf("no cpu samples returned")
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to sample memory: %w", err)
	}

	uptime, err := host.Uptime()
	if err != nil {
		return nil, fmt.Errorf("failed to read uptime: %w", err)
	}

	return map[string]interface{}{
		"cpu":    fmt.Sprintf("%.1f%%", percents[0]),
		"memory": fmt.Sprintf("%dMi used / %dMi total", vm.Used>>20, vm.Total>>20),
		"uptime": (time.Duration(uptime) * time.Second).String(),
	}, nil
}
