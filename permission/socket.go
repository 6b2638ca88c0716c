package permission

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yult97/idea-claude-code-gui-sub001/logger"
)

// Socket communication constants.
const (
	// SocketReadTimeout bounds one blocking read on the socket. Reads cycle
	// on timeout so the handler can notice server shutdown.
	SocketReadTimeout = 10 * time.Second

	// SocketWriteTimeout bounds a write so a hung peer cannot block the
	// handler indefinitely.
	SocketWriteTimeout = 10 * time.Second
)

// socketMessage wraps a permission request or response on the wire. Messages
// are newline-delimited JSON.
type socketMessage struct {
	Type string    `json:"type"`
	Req  *Request  `json:"req,omitempty"`
	Resp *Decision `json:"resp,omitempty"`
}

const messageTypePermission = "permission"

// SocketServer offers the same request/response contract as the file
// transport over a unix socket, for subprocesses that can speak one instead
// of dropping files.
type SocketServer struct {
	socketPath string
	listener   net.Listener
	arbiter    *Arbiter
	log        *slog.Logger

	closed   bool
	closedMu sync.RWMutex
	wg       sync.WaitGroup
	readyCh  chan struct{}
}

// NewSocketServer creates a server listening on a per-channel unix socket.
func NewSocketServer(channelID string, arbiter *Arbiter) (*SocketServer, error) {
	// Abbreviated channel ID keeps the path under the ~104 char unix socket
	// limit. 12 hex chars makes collisions negligible.
	shortID := channelID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}
	socketPath := filepath.Join(os.TempDir(), "cgui-"+shortID+".sock")
	log := logger.WithChannel(channelID).With("component", "permission-socket")

	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	log.Info("listening", "socketPath", socketPath)

	return &SocketServer{
		socketPath: socketPath,
		listener:   listener,
		arbiter:    arbiter,
		log:        log,
		readyCh:    make(chan struct{}),
	}, nil
}

// SocketPath returns the path to the socket.
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

// Start launches the accept loop.
func (s *SocketServer) Start() {
	s.wg.Add(1)
	go s.run()
}

// WaitReady blocks until the server is accepting connections.
func (s *SocketServer) WaitReady() {
	<-s.readyCh
}

func (s *SocketServer) run() {
	defer s.wg.Done()

	close(s.readyCh)

	for {
		s.closedMu.RLock()
		closed := s.closed
		s.closedMu.RUnlock()
		if closed {
			return
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.closedMu.RLock()
			closed := s.closed
			s.closedMu.RUnlock()
			if closed {
				return
			}
			s.log.Warn("accept error (continuing)", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *SocketServer) handleConnection(conn net.Conn) {
	defer conn.Close()
	s.log.Debug("connection accepted")

	reader := bufio.NewReader(conn)

	for {
		s.closedMu.RLock()
		closed := s.closed
		s.closedMu.RUnlock()
		if closed {
			return
		}

		conn.SetReadDeadline(time.Now().Add(SocketReadTimeout))

		line, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			s.log.Debug("read error, closing connection", "error", err)
			return
		}

		var msg socketMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			s.log.Error("JSON parse error", "error", err)
			continue
		}

		if msg.Type != messageTypePermission || msg.Req == nil {
			// Deny rather than leave the peer hanging on an unusable message.
			s.log.Warn("unusable socket message, denying", "type", msg.Type)
			s.sendDecision(conn, Decision{Message: "invalid permission request"})
			continue
		}

		decision := s.arbiter.Decide(context.Background(), *msg.Req)
		s.sendDecision(conn, decision)
		s.log.Info("permission request resolved over socket",
			"requestId", msg.Req.RequestID, "tool", msg.Req.ToolName, "allow", decision.Allow)
	}
}

func (s *SocketServer) sendDecision(conn net.Conn, d Decision) {
	msg := socketMessage{Type: messageTypePermission, Resp: &d}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to marshal decision", "error", err)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(SocketWriteTimeout))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		s.log.Error("write error", "error", err)
	}
}

// Close shuts down the server and removes the socket file.
func (s *SocketServer) Close() error {
	s.log.Info("closing permission socket server")

	s.closedMu.Lock()
	s.closed = true
	s.closedMu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()

	if removeErr := os.Remove(s.socketPath); removeErr != nil && !os.IsNotExist(removeErr) {
		s.log.Warn("failed to remove socket file", "socketPath", s.socketPath, "error", removeErr)
	}
	return err
}

// SocketClient is the subprocess side of the socket transport.
type SocketClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

// NewSocketClient connects to a permission socket.
func NewSocketClient(socketPath string) (*SocketClient, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &SocketClient{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Ask sends a permission request and blocks for the decision.
func (c *SocketClient) Ask(req Request) (Decision, error) {
	msg := socketMessage{Type: messageTypePermission, Req: &req}
	data, err := json.Marshal(msg)
	if err != nil {
		return Decision{}, err
	}

	c.conn.SetWriteDeadline(time.Now().Add(SocketWriteTimeout))
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return Decision{}, fmt.Errorf("write permission request: %w", err)
	}

	// The server enforces the arbitration deadline; the client waits it out.
	c.conn.SetReadDeadline(time.Time{})
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return Decision{}, fmt.Errorf("read permission response: %w", err)
	}

	var respMsg socketMessage
	if err := json.Unmarshal([]byte(line), &respMsg); err != nil {
		return Decision{}, err
	}
	if respMsg.Resp == nil {
		return Decision{}, fmt.Errorf("expected permission response, got none")
	}
	return *respMsg.Resp, nil
}

// Close closes the client connection.
func (c *SocketClient) Close() error {
	return c.conn.Close()
}
