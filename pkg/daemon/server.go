package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/costs"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/logging"
)

const (
	// DefaultConnectionTimeout is the idle deadline for client connections
	DefaultConnectionTimeout = 30 * time.Second
	// DefaultMaxConnections caps concurrent admin connections
	DefaultMaxConnections = 10
	// SocketPermissions restricts the admin socket to the owning user
	SocketPermissions = 0600
)

// Server exposes a Governor over a Unix domain socket using a line-delimited
// JSON protocol
type Server struct {
	governor          *Governor
	socketPath        string
	listener          net.Listener
	connectionTimeout time.Duration
	maxConnections    int
	activeConnections int
	mu                sync.Mutex
	ctx               context.Context
	cancel            context.CancelFunc
	wg                sync.WaitGroup
	logger            *logging.Logger
}

// NewServer creates an admin server for the governor
func NewServer(governor *Governor, socketPath string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New("daemon", logging.LevelInfo)
	}
	return &Server{
		governor:          governor,
		socketPath:        socketPath,
		connectionTimeout: DefaultConnectionTimeout,
		maxConnections:    DefaultMaxConnections,
		logger:            logger,
	}
}

// SetConnectionTimeout overrides the idle connection deadline
func (s *Server) SetConnectionTimeout(timeout time.Duration) {
	s.connectionTimeout = timeout
}

// Start begins listening on the Unix socket
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, SocketPermissions); err != nil {
		s.listener.Close()
		return err
	}

	go s.acceptConnections()

	s.logger.Info("admin socket listening", "socket", s.socketPath)
	return nil
}

// Stop closes the listener and waits for in-flight connections
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.wg.Wait()

	if removeErr := os.Remove(s.socketPath); removeErr != nil && !os.IsNotExist(removeErr) {
		if err == nil {
			err = removeErr
		}
	}

	return err
}

func (s *Server) acceptConnections() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				continue
			}
		}

		s.mu.Lock()
		if s.activeConnections >= s.maxConnections {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.activeConnections++
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		s.activeConnections--
		s.mu.Unlock()
		s.wg.Done()
	}()

	if s.connectionTimeout > 0 {
		conn.SetDeadline(time.Now().Add(s.connectionTimeout))
	}

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		response := s.handleMessage(strings.TrimSpace(line))

		responseData, err := json.Marshal(response)
		if err != nil {
			continue
		}
		conn.Write(append(responseData, '\n'))
	}
}

// handleMessage dispatches one protocol request to the governor
func (s *Server) handleMessage(message string) Response {
	var req Request
	if err := json.Unmarshal([]byte(message), &req); err != nil {
		return errorResponse("invalid", "invalid JSON")
	}

	switch req.Type {
	case TypeHandshake:
		if req.Version != "" && req.Version != ProtocolVersion {
			return errorResponse(TypeHandshake, "unsupported protocol version: "+req.Version)
		}
		resp := okResponse(TypeHandshake)
		resp.Version = ProtocolVersion
		return resp

	case TypeStats:
		resp := okResponse(TypeStats)
		stats := s.governor.Scheduler.Stats()
		resp.Stats = &stats
		return resp

	case TypeCostStats:
		if req.UserID == "" {
			return errorResponse(TypeCostStats, "missing user_id")
		}
		timeframe := costs.Timeframe(req.Timeframe)
		if timeframe == "" {
			timeframe = costs.TimeframeAll
		}
		resp := okResponse(TypeCostStats)
		stats := s.governor.Tracker.CostStats(req.UserID, timeframe)
		resp.CostStats = &stats
		return resp

	case TypeSystemStats:
		resp := okResponse(TypeSystemStats)
		stats := s.governor.Tracker.SystemStats()
		resp.SystemStats = &stats
		return resp

	case TypeAdjustConcurrency:
		if err := s.governor.Scheduler.AdjustConcurrency(req.Limit); err != nil {
			return errorResponse(TypeAdjustConcurrency, err.Error())
		}
		resp := okResponse(TypeAdjustConcurrency)
		resp.Message = "concurrency adjusted"
		return resp

	case TypeSetBudget:
		if req.UserID == "" {
			return errorResponse(TypeSetBudget, "missing user_id")
		}
		s.governor.Tracker.SetBudget(req.UserID, costs.Budget{
			DailyLimit:     req.DailyLimit,
			MonthlyLimit:   req.MonthlyLimit,
			AlertThreshold: req.AlertThreshold,
		})
		resp := okResponse(TypeSetBudget)
		resp.Message = "budget configured"
		return resp

	case TypeCheckLimit:
		if req.UserID == "" || req.Model == "" {
			return errorResponse(TypeCheckLimit, "missing user_id or model")
		}
		decision := s.governor.Limiter.Check(req.UserID, req.Model)
		resp := okResponse(TypeCheckLimit)
		resp.Decision = &decision
		return resp

	default:
		return errorResponse("unknown", "unknown message type: "+req.Type)
	}
}
