package parser

import (
	"encoding/binary"
	"fmt"
	"net"
	"slices"
	"strings"
)

func (r *dnsReader) readUint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("%w: out of bounds while reading uint16", ErrMalformed)
	}
	val := binary.BigEndian.Uint16(r.data[r.pos : r.pos+2])
	r.pos += 2
	return val, nil
}

func (r *dnsReader) readUint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("%w: out of bounds while reading uint32", ErrMalformed)
	}
	val := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return val, nil
}

func (r *dnsReader) readBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: cannot read non-positive number of bytes", ErrMalformed)
	}
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: out of bounds while reading bytes", ErrMalformed)
	}
	val := r.data[r.pos : r.pos+n]
	r.pos += n
	return val, nil
}

func (r *dnsReader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: out of bounds while reading byte", ErrMalformed)
	}
	val := r.data[r.pos]
	r.pos++
	return val, nil
}

func (r *dnsReader) readIP() (net.IP, error) {
	ipBytes, err := r.readBytes(net.IPv4len)
	if err != nil {
		return nil, err
	}
	ip := make(net.IP, net.IPv4len)
	copy(ip, ipBytes)
	return ip, nil
}

func (r *dnsReader) readNameFromOffset(offset uint16) (string, error) {
	if int(offset) >= len(r.data) {
		return "", fmt.Errorf("%w: pointer offset out of range", ErrMalformed)
	}
	if slices.Contains(r.offsetStack, offset) {
		return "", fmt.Errorf("%w: cyclical pointer offset", ErrMalformed)
	}
	r.offsetStack = append(r.offsetStack, offset)
	startPos := r.pos
	r.pos = int(offset)
	name, err := r.readName()
	if err != nil {
		return "", err
	}
	r.pos = startPos
	r.offsetStack = r.offsetStack[:len(r.offsetStack)-1]
	return name, nil
}

func (r *dnsReader) readName() (string, error) {
	tokens := make([]string, 0)
	for {
		lead, err := r.readByte()
		if err != nil {
			return "", err
		}
		if lead&PointerMask == PointerMask {
			// Pointer: must reference an earlier occurrence, never forward
			off2, err := r.readByte()
			if err != nil {
				return "", err
			}
			offset := uint16(lead&OffsetMask)<<8 | uint16(off2)
			if int(offset) >= r.pos-2 {
				return "", fmt.Errorf("%w: pointer does not reference an earlier offset", ErrMalformed)
			}
			token, err := r.readNameFromOffset(offset)
			if err != nil {
				return "", err
			}
			tokens = append(tokens, strings.TrimSuffix(token, "."))
			break
		} else if lead == 0 {
			// End of name
			break
		} else {
			// Label of length lead
			token, err := r.readBytes(int(lead))
			if err != nil {
				return "", fmt.Errorf("%w: name label extends past buffer", ErrMalformed)
			}
			tokens = append(tokens, string(token))
		}
	}
	name := strings.Join(tokens, ".") + "."
	if len(name) > MaxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d bytes", ErrMalformed, MaxNameLength)
	}
	return name, nil
}

func (h *DNSHeader) GetQR() bool {
	return h.flags&QRMask != 0
}

func (h *DNSHeader) GetOpcode() uint8 {
	return uint8((h.flags & OpcodeMask) >> 11)
}

func (h *DNSHeader) GetAA() bool {
	return h.flags&AAMask != 0
}

func (h *DNSHeader) GetTC() bool {
	return h.flags&TCMask != 0
}

func (h *DNSHeader) GetRD() bool {
	return h.flags&RDMask != 0
}

func (h *DNSHeader) GetRA() bool {
	return h.flags&RAMask != 0
}

func (h *DNSHeader) GetZ() uint8 {
	return uint8((h.flags & ZMask) >> 4)
}

func (h *DNSHeader) GetRCode() RCode {
	return RCode(h.flags & RCodeMask)
}

func (h *DNSHeader) validateHeader(mode MessageType) error {
	switch mode {
	case Query:
		if h.GetQR() {
			return fmt.Errorf("%w: QR bit set in query", ErrMalformed)
		}
		if h.GetAA() {
			return fmt.Errorf("%w: AA bit set in query", ErrMalformed)
		}
		if h.GetRA() {
			return fmt.Errorf("%w: RA bit set in query", ErrMalformed)
		}
		if h.GetZ() > 0 {
			return fmt.Errorf("%w: Z must be zero", ErrMalformed)
		}
		if h.GetRCode() > 0 {
			return fmt.Errorf("%w: RCODE set in query", ErrMalformed)
		}
		if h.QDCount == 0 {
			return fmt.Errorf("%w: QDCOUNT set to zero", ErrMalformed)
		}
		if h.ANCount > 0 {
			return fmt.Errorf("%w: ANCOUNT set in query", ErrMalformed)
		}
		if h.NSCount > 0 {
			return fmt.Errorf("%w: NSCOUNT set in query", ErrMalformed)
		}
		if h.ARCount > 0 {
			return fmt.Errorf("%w: ARCOUNT set in query", ErrMalformed)
		}
	case Response:
		if !h.GetQR() {
			return fmt.Errorf("%w: QR bit not set in response", ErrMalformed)
		}
		if h.QDCount == 0 {
			return fmt.Errorf("%w: QDCOUNT set to zero in response", ErrMalformed)
		}
	}
	return nil
}

func parseARecord(r *dnsReader) (ARecord, error) {
	res := ARecord{}
	var err error
	res.IP, err = r.readIP()
	if err != nil {
		return ARecord{}, err
	}
	return res, nil
}

func parseNSRecord(r *dnsReader) (NSRecord, error) {
	res := NSRecord{}
	var err error
	res.Name, err = r.readName()
	if err != nil {
		return NSRecord{}, err
	}
	return res, nil
}

func parseRawRecord(r *dnsReader, length int) (RawRecord, error) {
	if length == 0 {
		return RawRecord{}, nil
	}
	data, err := r.readBytes(length)
	if err != nil {
		return RawRecord{}, err
	}
	return RawRecord{Data: slices.Clone(data)}, nil
}

func parseRData(r *dnsReader, rt RecordType, length int) (RData, error) {
	var res RData
	var err error
	startPos := r.pos
	switch rt {
	case RTA:
		if length != net.IPv4len {
			return nil, fmt.Errorf("%w: A rdata length %d, want %d", ErrMalformed, length, net.IPv4len)
		}
		res, err = parseARecord(r)
	case RTNS:
		res, err = parseNSRecord(r)
	default:
		res, err = parseRawRecord(r, length)
	}
	if err != nil {
		return nil, err
	}
	if r.pos-startPos != length {
		return nil, fmt.Errorf("%w: rdata not aligned with RDLENGTH", ErrMalformed)
	}
	return res, nil
}

func (r *dnsReader) parseDNSResourceRecord(count uint16) ([]DNSResourceRecord, error) {
	if r.parseStatus != parsingResourceRecords {
		return nil, fmt.Errorf("%w: parser in incorrect state", ErrMalformed)
	}
	records := make([]DNSResourceRecord, count)
	var err error
	for i := 0; i < int(count); i++ {
		rr := DNSResourceRecord{}
		if rr.Name, err = r.readName(); err != nil {
			return nil, err
		}
		if t, err := r.readUint16(); err != nil {
			return nil, err
		} else {
			rr.Type = RecordType(t)
		}
		if c, err := r.readUint16(); err != nil {
			return nil, err
		} else {
			rr.Class = RecordClass(c)
		}
		if rr.TTL, err = r.readUint32(); err != nil {
			return nil, err
		}
		if rr.RDLength, err = r.readUint16(); err != nil {
			return nil, err
		}
		if rr.RData, err = parseRData(r, rr.Type, int(rr.RDLength)); err != nil {
			return nil, err
		}
		records[i] = rr
	}
	return records, nil
}

func (r *dnsReader) parseDNSHeader(mode MessageType) (DNSHeader, error) {
	if r.parseStatus != parsingHeader {
		return DNSHeader{}, fmt.Errorf("%w: parser in incorrect state", ErrMalformed)
	}
	h := DNSHeader{}
	var err error
	if h.ID, err = r.readUint16(); err != nil {
		return DNSHeader{}, err
	}
	if h.flags, err = r.readUint16(); err != nil {
		return DNSHeader{}, err
	}
	if h.QDCount, err = r.readUint16(); err != nil {
		return DNSHeader{}, err
	}
	if h.ANCount, err = r.readUint16(); err != nil {
		return DNSHeader{}, err
	}
	if h.NSCount, err = r.readUint16(); err != nil {
		return DNSHeader{}, err
	}
	if h.ARCount, err = r.readUint16(); err != nil {
		return DNSHeader{}, err
	}
	err = h.validateHeader(mode)
	if err != nil {
		return DNSHeader{}, err
	}
	r.parseStatus = parsingQuestion
	return h, nil
}

func (r *dnsReader) parseDNSQuestion(qdCount uint16) ([]DNSQuestion, error) {
	if r.parseStatus != parsingQuestion {
		return nil, fmt.Errorf("%w: parser in incorrect state", ErrMalformed)
	}
	questions := make([]DNSQuestion, qdCount)
	var err error
	for i := 0; i < int(qdCount); i++ {
		q := DNSQuestion{}
		if q.QName, err = r.readName(); err != nil {
			return nil, err
		}
		if t, err := r.readUint16(); err != nil {
			return nil, err
		} else {
			q.QType = RecordType(t)
		}
		if c, err := r.readUint16(); err != nil {
			return nil, err
		} else {
			q.QClass = RecordClass(c)
		}
		questions[i] = q
	}
	r.parseStatus = parsingResourceRecords
	return questions, nil
}

// ParseDNSMessage decodes wire bytes into a structured message. The header
// section counts always equal the lengths of the decoded section slices; on
// any format violation no partial message is returned.
func ParseDNSMessage(data []byte, mode MessageType) (DNSMessage, error) {
	m := DNSMessage{}
	var err error
	r := dnsReader{data: data}
	if m.Header, err = r.parseDNSHeader(mode); err != nil {
		return DNSMessage{}, err
	}
	if m.Questions, err = r.parseDNSQuestion(m.Header.QDCount); err != nil {
		return DNSMessage{}, err
	}
	if mode == Query {
		return m, nil
	}
	if m.Answers, err = r.parseDNSResourceRecord(m.Header.ANCount); err != nil {
		return DNSMessage{}, err
	}
	if m.Authorities, err = r.parseDNSResourceRecord(m.Header.NSCount); err != nil {
		return DNSMessage{}, err
	}
	if m.Additionals, err = r.parseDNSResourceRecord(m.Header.ARCount); err != nil {
		return DNSMessage{}, err
	}
	return m, nil
}
