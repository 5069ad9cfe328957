// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is advertised by WebSocket UART bridges
	ServiceType = "_smartaudio._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultBrowseTimeout is how long BrowseBridges listens by default
	DefaultBrowseTimeout = 5 * time.Second

	// defaultPath is used when a bridge does not publish a path TXT record
	defaultPath = "/smartaudio"
)

// Bridge is a network UART bridge found over mDNS
type Bridge struct {
	Instance string
	Host     string
	Addr     net.IP
	Port     int
	Path     string
	TLS      bool
}

// URL returns the WebSocket URL of the bridge
func (b Bridge) URL() string {
	scheme := "ws"
	if b.TLS {
		scheme = "wss"
	}
	host := b.Host
	if b.Addr != nil {
		host = b.Addr.String()
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(host, strconv.Itoa(b.Port)), b.Path)
}

// BrowseBridges listens for bridges until timeout or ctx ends
func BrowseBridges(ctx context.Context, timeout time.Duration) ([]Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		bridges []Bridge
	)
	go func() {
		for entry := range entries {
			b := bridgeFromEntry(entry)
			mu.Lock()
			bridges = append(bridges, b)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return bridges, nil
}

// Advertise publishes a bridge listening on port under instance until the
// returned stop function is called
func Advertise(instance string, port int, path string) (stop func(), err error) {
	text := []string{"path=" + path}
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, text, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return server.Shutdown, nil
}

// bridgeFromEntry converts a service entry. TXT records "path=" and "tls=1"
// override the defaults.
func bridgeFromEntry(entry *zeroconf.ServiceEntry) Bridge {
	b := Bridge{
		Instance: entry.Instance,
		Host:     strings.TrimSuffix(entry.HostName, "."),
		Port:     entry.Port,
		Path:     defaultPath,
	}
	if len(entry.AddrIPv4) > 0 {
		b.Addr = entry.AddrIPv4[0]
	} else if len(entry.AddrIPv6) > 0 {
		b.Addr = entry.AddrIPv6[0]
	}

	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			if !strings.HasPrefix(value, "/") {
				value = "/" + value
			}
			b.Path = value
		case "tls":
			b.TLS = value == "1" || value == "true"
		}
	}
	return b
}
