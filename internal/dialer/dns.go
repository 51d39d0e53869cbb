package dialer

import (
	"context"
	"maps"
	"net"
)

type ResolveConfig struct {
	CustomDNSServer string            `yaml:"dns_server"`
	Network         string            `yaml:"network" validate:"omitempty,oneof=ip ip4 ip6"` // one of "ip4", "ip6", default is "ip"
	StaticHosts     map[string]string `yaml:"static_hosts"`                                  // resembles /etc/hosts
}

func (c *ResolveConfig) Clone() *ResolveConfig {
	if c == nil {
		return nil
	}
	return &ResolveConfig{
		CustomDNSServer: c.CustomDNSServer,
		Network:         c.Network,
		StaticHosts:     maps.Clone(c.StaticHosts),
	}
}

// Merge fills the fields c leaves empty from fallback.
func (c *ResolveConfig) Merge(fallback *ResolveConfig) *ResolveConfig {
	if c == nil {
		return fallback.Clone()
	}
	m := c.Clone()
	if fallback == nil {
		return m
	}
	if m.CustomDNSServer == "" {
		m.CustomDNSServer = fallback.CustomDNSServer
	}
	if m.Network == "" {
		m.Network = fallback.Network
	}
	for k, v := range fallback.StaticHosts {
		if m.StaticHosts == nil {
			m.StaticHosts = map[string]string{}
		}
		if _, ok := m.StaticHosts[k]; !ok {
			m.StaticHosts[k] = v
		}
	}
	return m
}

func (c *ResolveConfig) tcpNetwork() string {
	if c != nil {
		switch c.Network {
		case "ip4":
			return "tcp4"
		case "ip6":
			return "tcp6"
		}
	}
	return "tcp"
}

// resolverFor sends every query to server, or to the system configured
// servers when server is empty.
func resolverFor(server string) *net.Resolver {
	if server == "" {
		return net.DefaultResolver
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, server)
		},
	}
}

func (d *CoreDialer) lookup(ctx context.Context, cfg *ResolveConfig, host string) ([]net.IP, error) {
	if cfg == nil {
		return d.LookupIPServer(ctx, "ip", host, "")
	}
	network := cfg.Network
	if network == "" {
		network = "ip"
	}
	return d.LookupIPServer(ctx, network, host, cfg.CustomDNSServer)
}

// LookupIPServer resolves host on the DNS server dns ("host:port"), or on
// the system resolver when dns is empty. Wrapping dialers may reuse it.
func (d *CoreDialer) LookupIPServer(ctx context.Context, network, host, dns string) ([]net.IP, error) {
	return resolverFor(dns).LookupIP(ctx, network, host)
}
