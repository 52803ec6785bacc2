package native

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
)

// GuardOption adjusts the address guard installed by WithAddressGuard.
type GuardOption func(*addressGuard)

// GuardAllow lets hosts, wildcard suffixes (*.example.com) or CIDRs through
// regardless of the other rules.
func GuardAllow(patterns ...string) GuardOption {
	return func(g *addressGuard) {
		g.allow = append(g.allow, patterns...)
	}
}

// GuardBlock rejects hosts, wildcard suffixes or CIDRs.
func GuardBlock(patterns ...string) GuardOption {
	return func(g *addressGuard) {
		g.block = append(g.block, patterns...)
	}
}

// GuardPorts restricts connections to the given ports.
func GuardPorts(ports ...int) GuardOption {
	return func(g *addressGuard) {
		g.ports = append(g.ports, ports...)
	}
}

// BlockedAddressError is returned by the guarded dialer.
type BlockedAddressError struct {
	Address string
	Reason  string
}

func (e *BlockedAddressError) Error() string {
	return fmt.Sprintf("address %s blocked: %s", e.Address, e.Reason)
}

type addressGuard struct {
	resolver      *net.Resolver
	allow         []string
	block         []string
	ports         []int
	blockPrivate  bool
	blockLoopback bool
}

func defaultGuard() *addressGuard {
	return &addressGuard{
		resolver:      net.DefaultResolver,
		blockPrivate:  true,
		blockLoopback: true,
	}
}

// dialContext resolves addr once, checks the result and dials the checked IP so
// a second resolution cannot swap the target.
func (g *addressGuard) dialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		ip, port, err := g.resolve(ctx, addr)
		if err != nil {
			return nil, err
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
	}
}

func (g *addressGuard) resolve(ctx context.Context, addr string) (net.IP, string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, "", &BlockedAddressError{Address: addr, Reason: err.Error()}
	}
	if len(g.ports) > 0 {
		p, _ := strconv.Atoi(port)
		if !slices.Contains(g.ports, p) {
			return nil, "", &BlockedAddressError{Address: addr, Reason: "port not allowed"}
		}
	}

	allowed := matchesAny(host, nil, g.allow)
	if !allowed && matchesAny(host, nil, g.block) {
		return nil, "", &BlockedAddressError{Address: addr, Reason: "host in blocklist"}
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := g.resolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, "", err
		}
		if len(ips) == 0 {
			return nil, "", &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
		}
		ip = ips[0]
	}

	if allowed || matchesAny("", ip, g.allow) {
		return ip, port, nil
	}
	if reason := g.check(ip); reason != "" {
		return nil, "", &BlockedAddressError{Address: addr, Reason: reason}
	}
	return ip, port, nil
}

func (g *addressGuard) check(ip net.IP) string {
	switch {
	case matchesAny("", ip, g.block):
		return "IP in blocklist"
	case g.blockLoopback && ip.IsLoopback():
		return "loopback addresses blocked"
	case g.blockPrivate && ip.IsPrivate():
		return "private addresses blocked"
	case ip.IsLinkLocalUnicast():
		return "link-local addresses blocked"
	case ip.IsMulticast():
		return "multicast addresses blocked"
	case ip.IsUnspecified():
		return "unspecified address blocked"
	}
	return ""
}

// matchesAny reports whether host or ip matches one of the patterns. Patterns
// are exact hosts, "*.suffix" wildcards or CIDRs.
func matchesAny(host string, ip net.IP, patterns []string) bool {
	if ip == nil && host != "" {
		ip = net.ParseIP(host)
	}
	for _, p := range patterns {
		if host != "" && host == p {
			return true
		}
		if host != "" && strings.HasPrefix(p, "*.") && strings.HasSuffix(host, p[1:]) {
			return true
		}
		if ip != nil {
			if _, cidr, err := net.ParseCIDR(p); err == nil && cidr.Contains(ip) {
				return true
			}
			if pip := net.ParseIP(p); pip != nil && pip.Equal(ip) {
				return true
			}
		}
	}
	return false
}
