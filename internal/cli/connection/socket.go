package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrAdminCommand wraps an ERR reply from the admin socket.
var ErrAdminCommand = errors.New("admin command failed")

// SocketClient talks to the server's local admin socket.
type SocketClient struct {
	path    string
	timeout time.Duration

	conn   net.Conn
	reader *bufio.Reader
}

// NewSocketClient creates a client for socketPath. Nothing is dialed until
// the first command.
func NewSocketClient(socketPath string, timeout time.Duration) *SocketClient {
	return &SocketClient{path: socketPath, timeout: timeout}
}

// Connect dials the socket.
func (c *SocketClient) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return fmt.Errorf("connect to admin socket %s: %w", c.path, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close closes the connection.
func (c *SocketClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.reader = nil, nil
	return err
}

// Execute sends one command line and returns the output lines before the
// final status line. An ERR reply returns ErrAdminCommand with the
// server's message.
func (c *SocketClient) Execute(ctx context.Context, command string) ([]string, error) {
	if strings.ContainsAny(command, "\r\n") {
		return nil, errors.New("admin command must be a single line")
	}
	if c.conn == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	deadline := time.Time{}
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := c.conn.Write([]byte(command + "\n")); err != nil {
		return nil, fmt.Errorf("send admin command: %w", err)
	}

	var lines []string
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return lines, fmt.Errorf("read admin reply: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "OK":
			return lines, nil
		case strings.HasPrefix(line, "ERR "):
			return lines, fmt.Errorf("%w: %s", ErrAdminCommand, strings.TrimPrefix(line, "ERR "))
		default:
			lines = append(lines, line)
		}
	}
}
