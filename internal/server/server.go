package server

import (
	"fmt"
	"net"
	"time"
)

const (
	// DNSPort is the well-known nameserver port.
	DNSPort = 53

	// DefaultTimeout is the per-exchange read/write deadline.
	DefaultTimeout = 5 * time.Second

	// maxResponseSize matches the EDNS(0) UDP payload size commonly
	// advertised by resolvers.
	maxResponseSize = 1232
)

// UDPTransport exchanges DNS messages over UDP, dialing IPv4 or IPv6
// depending on the target address. Each exchange opens its own socket, so a
// single value is safe for concurrent use.
type UDPTransport struct {
	Timeout time.Duration
	Port    int
}

func NewUDPTransport() *UDPTransport {
	return &UDPTransport{
		Timeout: DefaultTimeout,
		Port:    DNSPort,
	}
}

func (t *UDPTransport) Exchange(data []byte, host net.IP) ([]byte, error) {
	network := "udp6"
	if host.To4() != nil {
		network = "udp4"
	}
	conn, err := net.DialUDP(network, nil, &net.UDPAddr{IP: host, Port: t.Port})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}
	defer conn.Close()

	if t.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(t.Timeout)); err != nil {
			return nil, err
		}
	}
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("send to %s: %w", host, err)
	}

	resp := make([]byte, maxResponseSize)
	n, _, err := conn.ReadFromUDP(resp)
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", host, err)
	}
	return resp[:n], nil
}
