package sink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/donnguyen19/code42cli/internal/domain"
)

const dialTimeout = 10 * time.Second

// Net forwards one line per record to a syslog-style receiver over TCP or
// UDP. DNS resolution and (for TCP) the connection itself happen at
// construction, so a bad host is a SinkConfigError before extraction
// starts. TCP write failures surface as TransportErrors; UDP sends are
// fire-and-forget by nature.
type Net struct {
	conn net.Conn
	addr string
}

// NewNet connects to host:port using protocol "tcp" or "udp".
func NewNet(protocol, host string, port int) (*Net, error) {
	protocol = strings.ToLower(protocol)
	if protocol != "tcp" && protocol != "udp" {
		return nil, &domain.SinkConfigError{Dest: host, Err: fmt.Errorf("unsupported protocol %q", protocol)}
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if _, err := net.LookupHost(host); err != nil {
		return nil, &domain.SinkConfigError{Dest: addr, Err: fmt.Errorf("resolve host: %w", err)}
	}

	conn, err := net.DialTimeout(protocol, addr, dialTimeout)
	if err != nil {
		return nil, &domain.SinkConfigError{Dest: addr, Err: err}
	}

	return &Net{conn: conn, addr: addr}, nil
}

func (s *Net) Write(_ context.Context, line string) error {
	if _, err := fmt.Fprintln(s.conn, line); err != nil {
		return &domain.TransportError{Op: fmt.Sprintf("send to %s", s.addr), Err: err}
	}
	return nil
}

func (s *Net) Close() error {
	return s.conn.Close()
}
