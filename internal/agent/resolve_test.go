package agent

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestLocalAddrLoopbackIPv4(t *testing.T) {
	r := &NetResolver{}

	addr, err := r.LocalAddr(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}
	if addr != "127.0.0.1" {
		t.Errorf("addr = %q, want 127.0.0.1", addr)
	}
}

func TestLocalAddrPrefersIPv6(t *testing.T) {
	var dialed []string
	r := &NetResolver{
		LookupIP: func(_ context.Context, network, _ string) ([]net.IP, error) {
			if network == "ip6" {
				return []net.IP{net.ParseIP("2001:db8::2")}, nil
			}
			return []net.IP{net.ParseIP("192.0.2.2")}, nil
		},
		Dial: func(_ context.Context, network, address string) (net.Conn, error) {
			dialed = append(dialed, network+" "+address)
			return fakeConn{local: &net.UDPAddr{IP: net.ParseIP("2001:db8::1"), Port: 40000}}, nil
		},
	}

	addr, err := r.LocalAddr(context.Background(), "dest.example.net")
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}
	if addr != "2001:db8::1" {
		t.Errorf("addr = %q, want 2001:db8::1", addr)
	}
	if len(dialed) != 1 || dialed[0] != "udp6 [2001:db8::2]:80" {
		t.Errorf("dialed = %v, want [udp6 [2001:db8::2]:80]", dialed)
	}
}

func TestLocalAddrUsesIPv4WithoutIPv6Address(t *testing.T) {
	var dialed []string
	r := &NetResolver{
		LookupIP: func(_ context.Context, network, _ string) ([]net.IP, error) {
			if network == "ip6" {
				return nil, &net.DNSError{Err: "no such host", Name: "dest.example.net", IsNotFound: true}
			}
			return []net.IP{net.ParseIP("192.0.2.2")}, nil
		},
		Dial: func(_ context.Context, network, address string) (net.Conn, error) {
			dialed = append(dialed, network+" "+address)
			return fakeConn{local: &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 40000}}, nil
		},
	}

	addr, err := r.LocalAddr(context.Background(), "dest.example.net")
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}
	if addr != "192.0.2.1" {
		t.Errorf("addr = %q, want 192.0.2.1", addr)
	}
	if len(dialed) != 1 || dialed[0] != "udp4 192.0.2.2:80" {
		t.Errorf("dialed = %v, want [udp4 192.0.2.2:80]", dialed)
	}
}

func TestLocalAddrProbesOnce(t *testing.T) {
	var dials int
	r := &NetResolver{
		LookupIP: func(_ context.Context, network, _ string) ([]net.IP, error) {
			if network == "ip6" {
				return []net.IP{net.ParseIP("2001:db8::2")}, nil
			}
			return []net.IP{net.ParseIP("192.0.2.2")}, nil
		},
		Dial: func(_ context.Context, network, _ string) (net.Conn, error) {
			dials++
			if network == "udp6" {
				return nil, errors.New("network is unreachable")
			}
			return fakeConn{local: &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 40000}}, nil
		},
	}

	_, err := r.LocalAddr(context.Background(), "dest.example.net")
	if !errors.Is(err, ErrUnresolved) {
		t.Errorf("err = %v, want ErrUnresolved", err)
	}
	if dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
}

func TestLocalAddrUnresolved(t *testing.T) {
	r := &NetResolver{
		LookupIP: func(context.Context, string, string) ([]net.IP, error) {
			return nil, &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}
		},
	}

	_, err := r.LocalAddr(context.Background(), "nowhere.invalid")
	if !errors.Is(err, ErrUnresolved) {
		t.Errorf("err = %v, want ErrUnresolved", err)
	}
}

func TestLocalAddrEmptyHost(t *testing.T) {
	r := &NetResolver{}
	if _, err := r.LocalAddr(context.Background(), ""); !errors.Is(err, ErrUnresolved) {
		t.Errorf("err = %v, want ErrUnresolved", err)
	}
}

type fakeConn struct {
	net.Conn
	local net.Addr
}

func (c fakeConn) LocalAddr() net.Addr { return c.local }
func (c fakeConn) Close() error        { return nil }
