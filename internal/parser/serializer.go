package parser

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"strings"
)

func (s *dnsSerializer) writeUint16(v uint16) {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	s.data = append(s.data, buf...)
}

func (s *dnsSerializer) writeUint32(v uint32) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	s.data = append(s.data, buf...)
}

func (s *dnsSerializer) writeByte(v byte) {
	s.data = append(s.data, v)
}

func (s *dnsSerializer) writeBytes(v []byte) {
	s.data = append(s.data, v...)
}

func (s *dnsSerializer) writeString(v string) {
	s.writeByte(byte(len(v)))
	s.writeBytes([]byte(v))
}

func (s *dnsSerializer) writePointer(offset int) {
	s.writeUint16((uint16(PointerMask) << 8) | uint16(offset))
}

func (s *dnsSerializer) writeName(v string) error {
	if !strings.HasSuffix(v, ".") {
		v += "."
	}
	// Encoded form is one byte longer than the dotted fqdn string
	if len(v)+1 > MaxNameLength {
		return fmt.Errorf("%w: name %q exceeds %d bytes", ErrEncoding, v, MaxNameLength)
	}
	tokens := strings.Split(v, ".")
	for i, token := range tokens {
		if len(token) > MaxLabelLength {
			return fmt.Errorf("%w: label %q exceeds %d bytes", ErrEncoding, token, MaxLabelLength)
		}
		suffix := strings.Join(tokens[i:], ".")
		if offset, ok := s.names[suffix]; ok {
			s.writePointer(offset)
			return nil
		}
		if token == "" {
			s.writeByte(0)
			return nil
		}
		s.names[suffix] = len(s.data)
		s.writeString(token)
	}
	return nil
}

func (s *dnsSerializer) writeIP(v net.IP) error {
	ip4 := v.To4()
	if ip4 == nil {
		return fmt.Errorf("%w: %v is not an IPv4 address", ErrEncoding, v)
	}
	s.data = append(s.data, ip4...)
	return nil
}

func (h *DNSHeader) setQR(b bool) {
	h.flags &^= QRMask
	if b {
		h.flags |= QRMask
	}
}

func (h *DNSHeader) setOpcode(opcode uint8) {
	h.flags &^= OpcodeMask
	h.flags |= (uint16(opcode) << 11) & OpcodeMask
}

func (h *DNSHeader) setAA(b bool) {
	h.flags &^= AAMask
	if b {
		h.flags |= AAMask
	}
}

func (h *DNSHeader) setRD(b bool) {
	h.flags &^= RDMask
	if b {
		h.flags |= RDMask
	}
}

func (h *DNSHeader) setRA(b bool) {
	h.flags &^= RAMask
	if b {
		h.flags |= RAMask
	}
}

func (h *DNSHeader) setRCode(rcode RCode) {
	h.flags &^= RCodeMask
	h.flags |= uint16(rcode) & RCodeMask
}

func (s *dnsSerializer) writeRData(rdata RData) error {
	switch rd := rdata.(type) {
	case ARecord:
		return s.writeIP(rd.IP)
	case NSRecord:
		return s.writeName(rd.Name)
	case RawRecord:
		s.writeBytes(rd.Data)
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("%w: unsupported rdata type %T", ErrEncoding, rdata)
	}
}

func (s *dnsSerializer) serializeDNSHeader(h DNSHeader) {
	s.writeUint16(h.ID)
	s.writeUint16(h.flags)
	s.writeUint16(h.QDCount)
	s.writeUint16(h.ANCount)
	s.writeUint16(h.NSCount)
	s.writeUint16(h.ARCount)
}

func (s *dnsSerializer) serializeDNSQuestion(qs []DNSQuestion) error {
	for _, q := range qs {
		if err := s.writeName(q.QName); err != nil {
			return err
		}
		s.writeUint16(uint16(q.QType))
		s.writeUint16(uint16(q.QClass))
	}
	return nil
}

func (s *dnsSerializer) serializeDNSResourceRecord(rrs []DNSResourceRecord) error {
	for _, rr := range rrs {
		if err := s.writeName(rr.Name); err != nil {
			return err
		}
		s.writeUint16(uint16(rr.Type))
		s.writeUint16(uint16(rr.Class))
		s.writeUint32(rr.TTL)
		// RDLENGTH is backpatched once the rdata has been written, so the
		// value on the wire always reflects the actual rdata size
		lengthPos := len(s.data)
		s.writeUint16(0)
		if err := s.writeRData(rr.RData); err != nil {
			return err
		}
		binary.BigEndian.PutUint16(s.data[lengthPos:lengthPos+2], uint16(len(s.data)-lengthPos-2))
	}
	return nil
}

// SerializeDNSMessage encodes a message to wire bytes. Section counts are
// computed from the section slices, never taken from the caller's header.
func SerializeDNSMessage(m DNSMessage) ([]byte, error) {
	h := m.Header
	h.QDCount = uint16(len(m.Questions))
	h.ANCount = uint16(len(m.Answers))
	h.NSCount = uint16(len(m.Authorities))
	h.ARCount = uint16(len(m.Additionals))

	s := dnsSerializer{names: make(map[string]int)}
	s.serializeDNSHeader(h)
	if err := s.serializeDNSQuestion(m.Questions); err != nil {
		return nil, err
	}
	if err := s.serializeDNSResourceRecord(m.Answers); err != nil {
		return nil, err
	}
	if err := s.serializeDNSResourceRecord(m.Authorities); err != nil {
		return nil, err
	}
	if err := s.serializeDNSResourceRecord(m.Additionals); err != nil {
		return nil, err
	}
	return s.data, nil
}

func generateID() uint16 {
	return uint16(rand.Intn(1 << 16))
}

// NewQuery builds a single-question query message with a fresh random id.
// The recursion-desired bit is set according to caller intent; an iterative
// resolver leaves it unset and performs the walk itself.
func NewQuery(domain string, qtype RecordType, recursionDesired bool) DNSMessage {
	m := DNSMessage{
		Header: DNSHeader{
			ID:      generateID(),
			QDCount: 1,
		},
		Questions: []DNSQuestion{
			{
				QName:  domain,
				QType:  qtype,
				QClass: RCIN,
			},
		},
	}
	m.Header.setRD(recursionDesired)
	return m
}
