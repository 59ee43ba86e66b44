package resolver

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"dnswalk/internal/parser"

	"go.uber.org/zap"
	"golang.org/x/net/idna"
)

// Resolution outcomes. Lower-level codec and transport failures are wrapped
// into these so callers can branch with errors.Is.
var (
	ErrTransport   = errors.New("resolver: transport failure")
	ErrProtocol    = errors.New("resolver: bad response from server")
	ErrNoAnswer    = errors.New("resolver: no answer")
	ErrTooManyHops = errors.New("resolver: referral hop limit exceeded")
)

// Transport performs one blocking query/reply exchange with a nameserver.
// The address family is implied by the server IP. Implementations must be
// safe for concurrent independent use.
type Transport interface {
	Exchange(query []byte, server net.IP) ([]byte, error)
}

const (
	// DefaultMaxHops bounds the referral walk so broken or malicious
	// servers cannot keep the resolver looping.
	DefaultMaxHops = 16

	// maxSubWalkDepth bounds nested glueless-referral lookups.
	maxSubWalkDepth = 4
)

var rootServers = []net.IP{
	net.IPv4(198, 41, 0, 4),
	net.IPv4(170, 247, 170, 2),
	net.IPv4(192, 33, 4, 12),
	net.IPv4(199, 7, 91, 13),
	net.IPv4(192, 203, 230, 10),
	net.IPv4(192, 5, 5, 251),
	net.IPv4(198, 97, 190, 53),
	net.IPv4(192, 36, 148, 17),
	net.IPv4(193, 0, 14, 129),
	net.IPv4(202, 12, 27, 33),
}

// Resolver walks the DNS hierarchy from a root hint down to an answer.
// It holds no state across calls; a single Resolver may serve independent
// Resolve calls concurrently as long as its Transport allows it.
type Resolver struct {
	// Transport carries query bytes to a server and returns reply bytes.
	Transport Transport

	// Roots are the root hints used to bootstrap each walk.
	Roots []net.IP

	// MaxHops bounds the number of referrals followed per walk.
	MaxHops int

	// Timeout, when non-zero, is the wall-clock budget for the whole
	// multi-hop walk including sub-walks. Per-exchange timeouts are the
	// transport's concern.
	Timeout time.Duration

	logger *zap.Logger
}

func NewResolver(transport Transport, logger *zap.Logger) *Resolver {
	return &Resolver{
		Transport: transport,
		Roots:     rootServers,
		MaxHops:   DefaultMaxHops,
		logger:    logger,
	}
}

func (r *Resolver) rootServer() net.IP {
	return r.Roots[rand.Intn(len(r.Roots))]
}

// Resolve iteratively resolves domain to a record of the requested type,
// following referrals and glue from a root server. Queries are sent with
// recursion-desired unset: the walk is performed here, not upstream.
func (r *Resolver) Resolve(domain string, qtype parser.RecordType) (parser.DNSResourceRecord, error) {
	name, err := idna.Lookup.ToASCII(strings.TrimSuffix(domain, "."))
	if err != nil {
		return parser.DNSResourceRecord{}, fmt.Errorf("%w: %q: %v", parser.ErrEncoding, domain, err)
	}
	name += "."

	var deadline time.Time
	if r.Timeout > 0 {
		deadline = time.Now().Add(r.Timeout)
	}
	return r.resolve(name, qtype, deadline, 0)
}

func (r *Resolver) resolve(name string, qtype parser.RecordType, deadline time.Time, depth int) (parser.DNSResourceRecord, error) {
	if depth > maxSubWalkDepth {
		return parser.DNSResourceRecord{}, fmt.Errorf("%w: glueless referral chain too deep", ErrTooManyHops)
	}
	ns := r.rootServer()
	for hops := 0; hops < r.MaxHops; hops++ {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return parser.DNSResourceRecord{}, fmt.Errorf("%w: resolution deadline exceeded", ErrTransport)
		}
		r.logger.Debug("querying nameserver",
			zap.String("server", ns.String()),
			zap.String("name", name),
			zap.Stringer("type", qtype))
		msg, err := r.exchange(name, qtype, ns)
		if err != nil {
			return parser.DNSResourceRecord{}, err
		}
		if rr, ok := findAnswer(msg, name, qtype); ok {
			r.logger.Debug("answer received", zap.Stringer("record", rr))
			return rr, nil
		}
		ns, err = r.referral(msg, deadline, depth)
		if err != nil {
			return parser.DNSResourceRecord{}, err
		}
		r.logger.Debug("following referral", zap.String("server", ns.String()))
	}
	return parser.DNSResourceRecord{}, fmt.Errorf("%w: gave up after %d referrals", ErrTooManyHops, r.MaxHops)
}

// exchange sends one query to ns and decodes the reply.
func (r *Resolver) exchange(name string, qtype parser.RecordType, ns net.IP) (parser.DNSMessage, error) {
	q := parser.NewQuery(name, qtype, false)
	data, err := parser.SerializeDNSMessage(q)
	if err != nil {
		return parser.DNSMessage{}, err
	}
	reply, err := r.Transport.Exchange(data, ns)
	if err != nil {
		return parser.DNSMessage{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	msg, err := parser.ParseDNSMessage(reply, parser.Response)
	if err != nil {
		return parser.DNSMessage{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if msg.Header.ID != q.Header.ID {
		return parser.DNSMessage{}, fmt.Errorf("%w: response id %#x does not match query id %#x",
			ErrProtocol, msg.Header.ID, q.Header.ID)
	}
	return msg, nil
}

// findAnswer returns the first answer record of the requested type whose
// owner name matches the query name.
func findAnswer(msg parser.DNSMessage, name string, qtype parser.RecordType) (parser.DNSResourceRecord, bool) {
	for _, rr := range msg.Answers {
		if rr.Type == qtype && equalASCIIName(rr.Name, name) {
			return rr, true
		}
	}
	return parser.DNSResourceRecord{}, false
}

// referral picks the next server to query. Glue addresses from the
// additional section are preferred; a glueless NS target is resolved by a
// fresh bounded sub-walk.
func (r *Resolver) referral(msg parser.DNSMessage, deadline time.Time, depth int) (net.IP, error) {
	var nsNames []string
	for _, rr := range msg.Authorities {
		if rd, ok := rr.RData.(parser.NSRecord); ok && rr.Type == parser.RTNS {
			nsNames = append(nsNames, rd.Name)
		}
	}
	for _, nsName := range nsNames {
		for _, rr := range msg.Additionals {
			rd, ok := rr.RData.(parser.ARecord)
			if ok && rr.Type == parser.RTA && equalASCIIName(rr.Name, nsName) {
				return rd.IP, nil
			}
		}
	}
	for _, nsName := range nsNames {
		r.logger.Debug("resolving glueless nameserver", zap.String("name", nsName))
		rr, err := r.resolve(nsName, parser.RTA, deadline, depth+1)
		if err != nil {
			r.logger.Debug("glueless nameserver lookup failed",
				zap.String("name", nsName), zap.Error(err))
			continue
		}
		if rd, ok := rr.RData.(parser.ARecord); ok {
			return rd.IP, nil
		}
	}
	return nil, fmt.Errorf("%w: response carries no usable answer or referral", ErrNoAnswer)
}

// equalASCIIName compares domain names case-insensitively without
// allocating, the way the wire format defines equality.
func equalASCIIName(x, y string) bool {
	if len(x) != len(y) {
		return false
	}
	for i := 0; i < len(x); i++ {
		a := x[i]
		b := y[i]
		if 'A' <= a && a <= 'Z' {
			a += 0x20
		}
		if 'A' <= b && b <= 'Z' {
			b += 0x20
		}
		if a != b {
			return false
		}
	}
	return true
}
