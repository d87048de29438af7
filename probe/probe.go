package probe

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 1000 * time.Millisecond

// discoveryPacket is what the game client sends when it opens the server
// browser. Servers ignore empty datagrams but answer this one.
var discoveryPacket = [13]byte{253, 75, 35, 1, 0, 0, 12, 31, 2, 21, 179, 16, 1}

// DiscoveryPacket returns a copy of the probe payload.
func DiscoveryPacket() []byte {
	p := discoveryPacket
	return p[:]
}

// Outcome is the result of a single probe. The zero value means no response.
type Outcome struct {
	Responded bool
	RTT       time.Duration
}

var NoResponse = Outcome{}

func (o Outcome) String() string {
	if !o.Responded {
		return "no response"
	}
	return o.RTT.String()
}

// UDPProber measures round-trip time to a server with one discovery datagram.
type UDPProber struct {
	Timeout  time.Duration
	Resolver *net.Resolver
}

func NewUDPProber(timeout time.Duration) *UDPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &UDPProber{Timeout: timeout, Resolver: net.DefaultResolver}
}

// Probe sends the discovery packet to host:port and waits for any reply.
// Every failure, including resolution errors and ctx cancellation, yields
// NoResponse.
func (p *UDPProber) Probe(ctx context.Context, host string, port int) Outcome {
	out, err := p.probe(ctx, host, port)
	if err != nil {
		log.Debug().Err(err).Str("host", host).Int("port", port).Msg("probe: no response")
		return NoResponse
	}
	return out
}

func (p *UDPProber) probe(ctx context.Context, host string, port int) (Outcome, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// resolution gets its own budget; the reply wait starts at the send
	rctx, cancel := context.WithTimeout(ctx, timeout)
	target, err := p.resolve(rctx, host, port)
	cancel()
	if err != nil {
		return NoResponse, err
	}

	network := "udp4"
	if target.Addr().Is6() {
		network = "udp6"
	}
	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return NoResponse, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		// unblock ReadFrom on cancellation before the deadline
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if err := conn.SetDeadline(start.Add(timeout)); err != nil {
		return NoResponse, err
	}
	if ctx.Err() != nil {
		return NoResponse, ctx.Err()
	}
	if _, err := conn.WriteToUDPAddrPort(DiscoveryPacket(), target); err != nil {
		return NoResponse, err
	}
	buf := make([]byte, 1024)
	if _, _, err := conn.ReadFromUDPAddrPort(buf); err != nil {
		return NoResponse, err
	}
	return Outcome{Responded: true, RTT: time.Since(start)}, nil
}

var errNoAddress = errors.New("host resolved to no addresses")

func (p *UDPProber) resolve(ctx context.Context, host string, port int) (netip.AddrPort, error) {
	if port <= 0 || port > 65535 {
		return netip.AddrPort{}, errors.New("port out of range")
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip.Unmap(), uint16(port)), nil
	}
	r := p.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	ips, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, errNoAddress
	}
	// prefer IPv4, the directory lists v4 hosts almost exclusively
	ip := ips[0].Unmap()
	for _, cand := range ips {
		if cand.Unmap().Is4() {
			ip = cand.Unmap()
			break
		}
	}
	return netip.AddrPortFrom(ip, uint16(port)), nil
}
