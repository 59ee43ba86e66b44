package parser

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

type MessageType int

const (
	Query MessageType = iota
	Response
)

type RecordType uint16

const (
	RTA     RecordType = 1
	RTNS    RecordType = 2
	RTMD    RecordType = 3
	RTMF    RecordType = 4
	RTCNAME RecordType = 5
	RTSOA   RecordType = 6
	RTMB    RecordType = 7
	RTMG    RecordType = 8
	RTMR    RecordType = 9
	RTNULL  RecordType = 10
	RTWKS   RecordType = 11
	RTPTR   RecordType = 12
	RTHINFO RecordType = 13
	RTMINFO RecordType = 14
	RTMX    RecordType = 15
	RTTXT   RecordType = 16

	RTAXFR  RecordType = 252
	RTMAILB RecordType = 253
	RTMAILA RecordType = 254
	RTSTAR  RecordType = 255
)

func (rt RecordType) String() string {
	switch rt {
	case RTA:
		return "A"
	case RTNS:
		return "NS"
	case RTCNAME:
		return "CNAME"
	case RTSOA:
		return "SOA"
	case RTPTR:
		return "PTR"
	case RTMX:
		return "MX"
	case RTTXT:
		return "TXT"
	default:
		return fmt.Sprintf("TYPE%d", uint16(rt))
	}
}

// ParseRecordType maps a textual record type to its registry value. Only the
// types the resolver can act on are accepted.
func ParseRecordType(s string) (RecordType, error) {
	switch strings.ToUpper(s) {
	case "A":
		return RTA, nil
	case "NS":
		return RTNS, nil
	default:
		return 0, fmt.Errorf("unsupported record type %q", s)
	}
}

type RecordClass uint16

const (
	RCIN RecordClass = 1
	RCCS RecordClass = 2
	RCCH RecordClass = 3
	RCHS RecordClass = 4

	RCSTAR RecordClass = 255
)

type RCode uint8

const (
	NoError RCode = iota
	FormErr
	ServFail
	NXDomain
	NotImp
	Refused
)

const (
	QRMask     = 0x8000
	OpcodeMask = 0x7800
	AAMask     = 0x0400
	TCMask     = 0x0200
	RDMask     = 0x0100
	RAMask     = 0x0080
	ZMask      = 0x0070
	RCodeMask  = 0x000F
)

const PointerMask = 0xC0
const OffsetMask = 0x3F

// RFC 1035 section 2.3.4 limits.
const (
	MaxLabelLength = 63
	MaxNameLength  = 255
)

// ErrEncoding reports a name that cannot be represented on the wire.
var ErrEncoding = errors.New("dns: invalid name encoding")

// ErrMalformed reports wire bytes that violate the message format.
var ErrMalformed = errors.New("dns: malformed message")

type parseStatus int

const (
	parsingHeader parseStatus = iota
	parsingQuestion
	parsingResourceRecords
)

type RData any

type ARecord struct {
	IP net.IP
}

type NSRecord struct {
	Name string
}

// RawRecord carries the rdata of any type this codec does not interpret, so
// an unsupported record never aborts decoding of the rest of the message.
type RawRecord struct {
	Data []byte
}

type DNSHeader struct {
	ID      uint16
	flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

type DNSQuestion struct {
	QName  string
	QType  RecordType
	QClass RecordClass
}

type DNSResourceRecord struct {
	Name     string
	Type     RecordType
	Class    RecordClass
	TTL      uint32
	RDLength uint16
	RData    RData
}

func (rr DNSResourceRecord) String() string {
	switch rd := rr.RData.(type) {
	case ARecord:
		return fmt.Sprintf("%s %d %s %s", rr.Name, rr.TTL, rr.Type, rd.IP)
	case NSRecord:
		return fmt.Sprintf("%s %d %s %s", rr.Name, rr.TTL, rr.Type, rd.Name)
	default:
		return fmt.Sprintf("%s %d %s <%d bytes>", rr.Name, rr.TTL, rr.Type, rr.RDLength)
	}
}

type DNSMessage struct {
	Header      DNSHeader
	Questions   []DNSQuestion
	Answers     []DNSResourceRecord
	Authorities []DNSResourceRecord
	Additionals []DNSResourceRecord
}

type dnsReader struct {
	data        []byte
	pos         int
	parseStatus parseStatus
	offsetStack []uint16
}

type dnsSerializer struct {
	data  []byte
	names map[string]int
}
