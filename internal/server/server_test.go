package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopbackServer(t *testing.T) *net.UDPConn {
	t.Helper()
	pc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })
	return pc
}

func TestUDPTransport_Exchange(t *testing.T) {
	pc := newLoopbackServer(t)
	query := []byte{0x12, 0x34, 0x01, 0x00}
	reply := []byte{0x12, 0x34, 0x81, 0x80}

	go func() {
		buf := make([]byte, maxResponseSize)
		n, addr, err := pc.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n == len(query) {
			pc.WriteToUDP(reply, addr)
		}
	}()

	tr := NewUDPTransport()
	tr.Timeout = time.Second
	tr.Port = pc.LocalAddr().(*net.UDPAddr).Port

	got, err := tr.Exchange(query, net.IPv4(127, 0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, reply, got)
}

func TestUDPTransport_Timeout(t *testing.T) {
	pc := newLoopbackServer(t)

	tr := NewUDPTransport()
	tr.Timeout = 50 * time.Millisecond
	tr.Port = pc.LocalAddr().(*net.UDPAddr).Port

	start := time.Now()
	_, err := tr.Exchange([]byte{0x00}, net.IPv4(127, 0, 0, 1))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var nerr net.Error
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Timeout())
}
