// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

// Package discovery finds temperature sensor nodes via mDNS (multicast DNS).
//
// Sensor nodes built on the common ESP firmware stack advertise themselves
// with the service type "_esphomelib._tcp" in the "local." domain. The
// scanner browses for those advertisements and keeps an instance-name index
// so a node referenced by name in the configuration can be resolved to a
// concrete host and port without hard-coding addresses.
//
// All scanner operations are safe for concurrent use.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/logger"
	"github.com/hotcirc/hotcirc/pkg/metrics"
)

// Node represents a discovered sensor node.
type Node struct {
	Name      string
	Address   net.IP
	Port      int
	TXTRecord map[string]string
	Hostname  string
}

// BaseURL returns the node's HTTP endpoint. ESP nodes expose their REST API
// on the advertised port.
func (n *Node) BaseURL() string {
	if n.Address.To4() == nil {
		return fmt.Sprintf("http://[%s]:%d", n.Address.String(), n.Port)
	}
	return fmt.Sprintf("http://%s:%d", n.Address.String(), n.Port)
}

// Version returns the firmware version advertised in the TXT record, if any.
func (n *Node) Version() string {
	if n.TXTRecord == nil {
		return ""
	}
	return n.TXTRecord["version"]
}

// Scanner handles sensor node discovery via mDNS.
type Scanner struct {
	serviceType string
	domain      string
	nodes       map[string]*Node
	mu          sync.RWMutex // Protects nodes map
}

// NewScanner creates a new node scanner.
func NewScanner(serviceType, domain string) *Scanner {
	return &Scanner{
		serviceType: serviceType,
		domain:      domain,
		nodes:       make(map[string]*Node),
	}
}

// Discover performs a single discovery scan. It browses for the configured
// service type until the timeout expires and returns the nodes seen during
// this scan. Nodes accumulate in the scanner's index across scans, so a
// node that misses one periodic re-scan is not forgotten.
func (s *Scanner) Discover(ctx context.Context, timeout time.Duration) ([]*Node, error) {
	start := time.Now()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, errors.NewDiscoveryError("create resolver", err)
	}

	// Buffered so a burst of advertisements does not block the resolver.
	entries := make(chan *zeroconf.ServiceEntry, 10)
	found := make([]*Node, 0)
	var mu sync.Mutex // Protects found slice (function-local)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			node := parseServiceEntry(entry)
			if node == nil {
				continue
			}

			s.mu.Lock()
			s.nodes[node.Name] = node
			s.mu.Unlock()

			mu.Lock()
			found = append(found, node)
			mu.Unlock()

			logger.Info().
				Str("node", node.Name).
				Str("address", node.Address.String()).
				Int("port", node.Port).
				Str("version", node.Version()).
				Msg("Discovered sensor node")
		}
	}()

	discoverCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = resolver.Browse(discoverCtx, s.serviceType, s.domain, entries)
	if err != nil {
		return nil, errors.NewDiscoveryError("browse", err)
	}

	<-discoverCtx.Done()
	wg.Wait()

	metrics.DiscoveryDuration.Observe(time.Since(start).Seconds())
	return found, nil
}

// parseServiceEntry converts a zeroconf service entry to a Node.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Node {
	if entry == nil {
		return nil
	}
	if len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0 {
		return nil
	}

	// Prefer IPv4, fall back to IPv6.
	var addr net.IP
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0]
	} else {
		addr = entry.AddrIPv6[0]
	}

	txtRecord := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			txtRecord[parts[0]] = parts[1]
		}
	}

	return &Node{
		Name:      entry.Instance,
		Address:   addr,
		Port:      entry.Port,
		TXTRecord: txtRecord,
		Hostname:  entry.HostName,
	}
}

// GetNodes returns all nodes seen so far.
func (s *Scanner) GetNodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		nodes = append(nodes, node)
	}
	return nodes
}

// GetNodeByName returns a node by its mDNS instance name, or nil when it
// has not been discovered.
func (s *Scanner) GetNodeByName(name string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[name]
}

// ResolveSensorURL builds the REST endpoint for a named sensor on a named
// node, e.g. node "hotcirc-sensors" and sensor id "outlet_temp" become
// "http://<addr>:<port>/sensor/outlet_temp".
func (s *Scanner) ResolveSensorURL(nodeName, sensorID string) (string, error) {
	node := s.GetNodeByName(nodeName)
	if node == nil {
		return "", errors.NewDiscoveryError("resolve node "+nodeName, errors.ErrNodeNotFound)
	}
	return node.BaseURL() + "/sensor/" + sensorID, nil
}
