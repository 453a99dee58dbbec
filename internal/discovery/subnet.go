package discovery

import (
	"fmt"
	"net"
	"net/netip"
)

// LocalSubnet returns the /24 network of the interface holding the default
// route. The UDP "dial" only selects a source address; no packet is sent.
func LocalSubnet() (netip.Prefix, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("detecting local address: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Prefix{}, fmt.Errorf("unexpected local address %v", conn.LocalAddr())
	}
	ip, ok := netip.AddrFromSlice(addr.IP.To4())
	if !ok {
		return netip.Prefix{}, fmt.Errorf("local address %v is not IPv4", addr.IP)
	}
	return ip.Prefix(24)
}

// ParseSubnet parses a CIDR such as "192.168.1.0/24" and masks it.
func ParseSubnet(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("parsing subnet %q: %w", s, err)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("subnet %q is not IPv4", s)
	}
	return p.Masked(), nil
}

// Hosts lists the usable host addresses of an IPv4 prefix, excluding the
// network and broadcast addresses. Prefixes wider than /16 are refused.
func Hosts(p netip.Prefix) ([]string, error) {
	if !p.Addr().Is4() {
		return nil, fmt.Errorf("prefix %v is not IPv4", p)
	}
	if p.Bits() < 16 {
		return nil, fmt.Errorf("prefix %v is too large to scan", p)
	}
	p = p.Masked()

	size := 1 << (32 - p.Bits())
	if size <= 2 {
		return []string{p.Addr().String()}, nil
	}

	hosts := make([]string, 0, size-2)
	addr := p.Addr().Next()
	for i := 1; i < size-1; i++ {
		hosts = append(hosts, addr.String())
		addr = addr.Next()
	}
	return hosts, nil
}
