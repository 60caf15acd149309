package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/costs"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/ratelimit"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/scheduler"
)

// Client talks to a running governor daemon over its admin socket
type Client struct {
	socketPath        string
	connectionTimeout time.Duration
	conn              net.Conn
	reader            *bufio.Reader
	mu                sync.Mutex
}

// NewClient creates a daemon client for the given socket path
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath:        socketPath,
		connectionTimeout: 5 * time.Second,
	}
}

// connect dials the daemon and performs the protocol handshake. Caller holds
// c.mu.
func (c *Client) connect() error {
	if c.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("unix", c.socketPath, c.connectionTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon at %s: %w", c.socketPath, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)

	resp, err := c.sendLocked(Request{Type: TypeHandshake, Version: ProtocolVersion, Client: "llmgov-cli"})
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("handshake failed: %w", err)
	}
	if resp.Status != "ok" {
		c.closeLocked()
		return fmt.Errorf("handshake rejected by daemon: %s", resp.Error)
	}
	return nil
}

// sendLocked writes one request line and reads one response line. Caller
// holds c.mu.
func (c *Client) sendLocked(req Request) (*Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	c.conn.SetDeadline(time.Now().Add(c.connectionTimeout))
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// roundTrip connects if needed and exchanges one request/response pair
func (c *Client) roundTrip(req Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(); err != nil {
		return nil, err
	}
	resp, err := c.sendLocked(req)
	if err != nil {
		c.closeLocked()
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

// Stats fetches the scheduler snapshot
func (c *Client) Stats() (*scheduler.Stats, error) {
	resp, err := c.roundTrip(Request{Type: TypeStats})
	if err != nil {
		return nil, err
	}
	if resp.Stats == nil {
		return nil, fmt.Errorf("daemon returned no stats payload")
	}
	return resp.Stats, nil
}

// CostStats fetches a user's cost aggregation
func (c *Client) CostStats(userID string, timeframe string) (*costs.CostStats, error) {
	resp, err := c.roundTrip(Request{Type: TypeCostStats, UserID: userID, Timeframe: timeframe})
	if err != nil {
		return nil, err
	}
	if resp.CostStats == nil {
		return nil, fmt.Errorf("daemon returned no cost stats payload")
	}
	return resp.CostStats, nil
}

// SystemStats fetches the cross-user cost view
func (c *Client) SystemStats() (*costs.SystemStats, error) {
	resp, err := c.roundTrip(Request{Type: TypeSystemStats})
	if err != nil {
		return nil, err
	}
	if resp.SystemStats == nil {
		return nil, fmt.Errorf("daemon returned no system stats payload")
	}
	return resp.SystemStats, nil
}

// AdjustConcurrency changes the daemon's concurrency ceiling
func (c *Client) AdjustConcurrency(limit int) error {
	_, err := c.roundTrip(Request{Type: TypeAdjustConcurrency, Limit: limit})
	return err
}

// SetBudget configures a user budget on the daemon
func (c *Client) SetBudget(userID string, daily, monthly, alertThreshold float64) error {
	_, err := c.roundTrip(Request{
		Type:           TypeSetBudget,
		UserID:         userID,
		DailyLimit:     daily,
		MonthlyLimit:   monthly,
		AlertThreshold: alertThreshold,
	})
	return err
}

// CheckLimit performs a rate-limit check through the daemon
func (c *Client) CheckLimit(userID, model string) (*ratelimit.Decision, error) {
	resp, err := c.roundTrip(Request{Type: TypeCheckLimit, UserID: userID, Model: model})
	if err != nil {
		return nil, err
	}
	if resp.Decision == nil {
		return nil, fmt.Errorf("daemon returned no decision payload")
	}
	return resp.Decision, nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}
