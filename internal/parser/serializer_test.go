package parser

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
)

func mustIPv4(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("bad IPv4 literal %q", s)
	}
	return ip
}

func TestNewQuery_SerializesToExpectedBytes(t *testing.T) {
	tests := []struct {
		name         string
		domain       string
		qtype        RecordType
		rd           bool
		expectedWire []byte
	}{
		{
			name:   "A query for example.com",
			domain: "example.com.",
			qtype:  RTA,
			expectedWire: []byte{
				0x00, 0x00, 0x00, 0x00, // ID + flags
				0x00, 0x01, 0x00, 0x00, // QDCOUNT=1, ANCOUNT=0
				0x00, 0x00, 0x00, 0x00, // NSCOUNT=0, ARCOUNT=0
				0x07, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
				0x03, 'c', 'o', 'm',
				0x00,
				0x00, 0x01, // Type A
				0x00, 0x01, // Class IN
			},
		},
		{
			name:   "NS query for google.com",
			domain: "google.com.",
			qtype:  RTNS,
			expectedWire: []byte{
				0x00, 0x00, 0x00, 0x00,
				0x00, 0x01, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00,
				0x06, 'g', 'o', 'o', 'g', 'l', 'e',
				0x03, 'c', 'o', 'm',
				0x00,
				0x00, 0x02, // Type NS
				0x00, 0x01, // Class IN
			},
		},
		{
			name:   "A query with recursion desired",
			domain: "www.example.com.",
			qtype:  RTA,
			rd:     true,
			expectedWire: []byte{
				0x00, 0x00, 0x01, 0x00, // RD bit set
				0x00, 0x01, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00,
				0x03, 'w', 'w', 'w',
				0x07, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
				0x03, 'c', 'o', 'm',
				0x00,
				0x00, 0x01,
				0x00, 0x01,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := SerializeDNSMessage(NewQuery(tt.domain, tt.qtype, tt.rd))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(query) != len(tt.expectedWire) {
				t.Fatalf("length mismatch: got %d, want %d", len(query), len(tt.expectedWire))
			}
			if !bytes.Equal(query[2:], tt.expectedWire[2:]) {
				t.Errorf("byte mismatch (excluding ID):\ngot  %v\nwant %v", query[2:], tt.expectedWire[2:])
			}
		})
	}
}

func TestSerializeDNSMessage_NameLimits(t *testing.T) {
	tests := []struct {
		name   string
		domain string
	}{
		{
			name:   "label longer than 63 bytes",
			domain: strings.Repeat("a", 64) + ".com.",
		},
		{
			name:   "name longer than 255 bytes",
			domain: strings.Repeat(strings.Repeat("a", 63)+".", 5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SerializeDNSMessage(NewQuery(tt.domain, RTA, false))
			if !errors.Is(err, ErrEncoding) {
				t.Errorf("expected ErrEncoding, got %v", err)
			}
		})
	}
}

func TestSerializeDNSMessage_NameRoundTrip(t *testing.T) {
	domains := []string{
		"example.com.",
		"a.b.c.d.e.f.example.com.",
		"xn--nxasmq6b.example.",
		strings.Repeat("a", 63) + ".com.",
	}
	for _, domain := range domains {
		wire, err := SerializeDNSMessage(NewQuery(domain, RTA, false))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", domain, err)
		}
		msg, err := ParseDNSMessage(wire, Query)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", domain, err)
		}
		if msg.Questions[0].QName != domain {
			t.Errorf("round trip changed name: got %s, want %s", msg.Questions[0].QName, domain)
		}
	}
}

// Section counts on the wire must come from the section slices, not from
// whatever the caller left in the header.
func TestSerializeDNSMessage_ComputesCounts(t *testing.T) {
	m := NewQuery("example.com.", RTA, false)
	m.Header.setQR(true)
	m.Header.QDCount = 9
	m.Header.ANCount = 9
	m.Answers = []DNSResourceRecord{
		{
			Name:     "example.com.",
			Type:     RTA,
			Class:    RCIN,
			TTL:      60,
			RDLength: 99, // ignored, backpatched from the rdata
			RData:    ARecord{IP: mustIPv4(t, "93.184.216.34")},
		},
	}

	wire, err := SerializeDNSMessage(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := ParseDNSMessage(wire, Response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Header.QDCount != 1 || parsed.Header.ANCount != 1 {
		t.Errorf("expected QDCOUNT=1 ANCOUNT=1, got %d %d", parsed.Header.QDCount, parsed.Header.ANCount)
	}
	if parsed.Answers[0].RDLength != 4 {
		t.Errorf("expected RDLENGTH 4, got %d", parsed.Answers[0].RDLength)
	}
	a, ok := parsed.Answers[0].RData.(ARecord)
	if !ok || a.IP.String() != "93.184.216.34" {
		t.Errorf("A record lost fidelity: %v", parsed.Answers[0].RData)
	}
}

// A name compressed down to a pointer must decode to the same labels as its
// fully expanded encoding.
func TestSerializeDNSMessage_CompressionRoundTrip(t *testing.T) {
	m := NewQuery("www.example.com.", RTA, false)
	m.Header.setQR(true)
	m.Answers = []DNSResourceRecord{
		{
			Name:  "www.example.com.",
			Type:  RTA,
			Class: RCIN,
			TTL:   60,
			RData: ARecord{IP: mustIPv4(t, "93.184.216.34")},
		},
	}

	wire, err := SerializeDNSMessage(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The answer owner repeats the question name, so it must be a pointer
	// back to offset 12
	pointer := []byte{0xc0, 0x0c}
	if !bytes.Contains(wire, pointer) {
		t.Fatalf("expected compressed owner name in %v", wire)
	}

	parsed, err := ParseDNSMessage(wire, Response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Answers[0].Name != parsed.Questions[0].QName {
		t.Errorf("compressed name %q differs from expanded name %q",
			parsed.Answers[0].Name, parsed.Questions[0].QName)
	}
}
