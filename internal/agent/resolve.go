// Package agent finds the local interface address a host uses to reach a
// destination, the "measurement agent" recorded with each archived run.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnresolved is returned when no address family can reach the destination.
var ErrUnresolved = errors.New("measurement agent unresolved")

// probePort is the destination port used for the connectionless probe.
// No packet is sent; the port only has to be valid for connect(2).
const probePort = "80"

// Resolver returns the local address used to reach host.
type Resolver interface {
	LocalAddr(ctx context.Context, host string) (string, error)
}

// NetResolver resolves through the system resolver and a UDP probe socket.
type NetResolver struct {
	// LookupIP defaults to net.DefaultResolver.LookupIP.
	LookupIP func(ctx context.Context, network, host string) ([]net.IP, error)
	// Dial defaults to a zero net.Dialer.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// family pairs a lookup network with the matching probe socket network.
type family struct {
	lookup string
	dial   string
}

// IPv6 is preferred over IPv4. Only the first family with an address is
// probed, so a run opens at most one socket.
var families = []family{
	{lookup: "ip6", dial: "udp6"},
	{lookup: "ip4", dial: "udp4"},
}

// LocalAddr implements Resolver.
func (r *NetResolver) LocalAddr(ctx context.Context, host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("%w: empty destination", ErrUnresolved)
	}

	var errs []error
	for _, f := range families {
		ips, err := r.lookup(ctx, f.lookup, host)
		if err != nil {
			errs = append(errs, fmt.Errorf("lookup %s: %w", f.lookup, err))
			continue
		}
		if len(ips) == 0 {
			continue
		}
		addr, err := r.probe(ctx, f.dial, ips[0])
		if err != nil {
			return "", fmt.Errorf("%w: %s: probe %s: %w", ErrUnresolved, host, f.dial, err)
		}
		return addr, nil
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s: no addresses", ErrUnresolved, host)
	}
	return "", fmt.Errorf("%w: %s: %w", ErrUnresolved, host, errors.Join(errs...))
}

func (r *NetResolver) lookup(ctx context.Context, network, host string) ([]net.IP, error) {
	if r.LookupIP != nil {
		return r.LookupIP(ctx, network, host)
	}
	return net.DefaultResolver.LookupIP(ctx, network, host)
}

// probe connects a UDP socket to ip and reports the local address the kernel
// bound for it.
func (r *NetResolver) probe(ctx context.Context, network string, ip net.IP) (string, error) {
	dial := r.Dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	conn, err := dial(ctx, network, net.JoinHostPort(ip.String(), probePort))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	switch a := conn.LocalAddr().(type) {
	case *net.UDPAddr:
		return a.IP.String(), nil
	default:
		host, _, err := net.SplitHostPort(a.String())
		if err != nil {
			return "", fmt.Errorf("local address %q: %w", a.String(), err)
		}
		return host, nil
	}
}
