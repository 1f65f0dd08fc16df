package sink

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donnguyen19/code42cli/internal/domain"
)

func TestStdout_WritesOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)

	require.NoError(t, s.Write(context.Background(), `{"id":"1"}`))
	require.NoError(t, s.Write(context.Background(), `{"id":"2"}`))
	require.NoError(t, s.Close())

	assert.Equal(t, "{\"id\":\"1\"}\n{\"id\":\"2\"}\n", buf.String())
}

func TestFile_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	first, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, first.Write(context.Background(), "run-one"))
	require.NoError(t, first.Close())

	second, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, second.Write(context.Background(), "run-two"))
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "run-one\nrun-two\n", string(data))
}

func TestFile_UnwritablePathIsConfigError(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "missing", "dir", "events.log"))
	require.Error(t, err)

	var cfgErr *domain.SinkConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNet_UnresolvableHostIsConfigError(t *testing.T) {
	_, err := NewNet("tcp", "host.invalid", 514)
	require.Error(t, err)

	var cfgErr *domain.SinkConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNet_UnsupportedProtocolIsConfigError(t *testing.T) {
	_, err := NewNet("sctp", "localhost", 514)
	require.Error(t, err)

	var cfgErr *domain.SinkConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNet_TCPDelivery(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- line
	}()

	addr := ln.Addr().(*net.TCPAddr)
	s, err := NewNet("tcp", "127.0.0.1", addr.Port)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), "CEF:0|Code42|Alerts|1|x|x|5|"))

	select {
	case line := <-received:
		assert.Equal(t, "CEF:0|Code42|Alerts|1|x|x|5|\n", line)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for TCP delivery")
	}
}

func TestNet_TCPWriteFailureIsTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	addr := ln.Addr().(*net.TCPAddr)
	s, err := NewNet("tcp", "127.0.0.1", addr.Port)
	require.NoError(t, err)
	defer s.Close()
	ln.Close()

	// The peer has closed; repeated writes must eventually surface a
	// transport error rather than report success forever.
	var writeErr error
	for i := 0; i < 50; i++ {
		writeErr = s.Write(context.Background(), "line")
		if writeErr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Error(t, writeErr)

	var transportErr *domain.TransportError
	assert.ErrorAs(t, writeErr, &transportErr)
}

func TestNet_UDPDelivery(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	addr := pc.LocalAddr().(*net.UDPAddr)
	s, err := NewNet("udp", "127.0.0.1", addr.Port)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), `{"id":"1"}`))

	buf := make([]byte, 256)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":\"1\"}\n", string(buf[:n]))
}

func TestKafka_NoBrokersIsConfigError(t *testing.T) {
	_, err := NewKafka(nil, "security-events", nil)
	require.Error(t, err)

	var cfgErr *domain.SinkConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
