// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"

	hcerrors "github.com/hotcirc/hotcirc/pkg/errors"
)

func TestNewScanner(t *testing.T) {
	serviceType := "_esphomelib._tcp"
	domain := "local."

	scanner := NewScanner(serviceType, domain)

	if scanner == nil {
		t.Fatal("NewScanner() returned nil")
	}

	if scanner.serviceType != serviceType {
		t.Errorf("serviceType = %v, want %v", scanner.serviceType, serviceType)
	}

	if scanner.domain != domain {
		t.Errorf("domain = %v, want %v", scanner.domain, domain)
	}

	if scanner.nodes == nil {
		t.Error("nodes map is nil")
	}

	if len(scanner.nodes) != 0 {
		t.Errorf("nodes map should be empty, got %d nodes", len(scanner.nodes))
	}
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *zeroconf.ServiceEntry
		want  *Node
	}{
		{
			name:  "nil entry",
			entry: nil,
			want:  nil,
		},
		{
			name:  "no addresses",
			entry: &zeroconf.ServiceEntry{Port: 6052},
			want:  nil,
		},
		{
			name: "IPv4 preferred over IPv6",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "hotcirc-sensors"},
				HostName:      "hotcirc-sensors.local.",
				Port:          6052,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
				Text:          []string{"version=2024.12.0", "mac=aabbccddeeff"},
			},
			want: &Node{
				Name:     "hotcirc-sensors",
				Address:  net.ParseIP("192.168.1.50"),
				Port:     6052,
				Hostname: "hotcirc-sensors.local.",
				TXTRecord: map[string]string{
					"version": "2024.12.0",
					"mac":     "aabbccddeeff",
				},
			},
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "basement-node"},
				Port:          6052,
				AddrIPv6:      []net.IP{net.ParseIP("fe80::2")},
			},
			want: &Node{
				Name:      "basement-node",
				Address:   net.ParseIP("fe80::2"),
				Port:      6052,
				TXTRecord: map[string]string{},
			},
		},
		{
			name: "TXT entries without equals sign are skipped",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "node"},
				Port:          6052,
				AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
				Text:          []string{"flagonly", "board=esp32", "a=b=c"},
			},
			want: &Node{
				Name:    "node",
				Address: net.ParseIP("10.0.0.5"),
				Port:    6052,
				TXTRecord: map[string]string{
					"board": "esp32",
					"a":     "b=c",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseServiceEntry(tt.entry)

			if tt.want == nil {
				if got != nil {
					t.Fatalf("parseServiceEntry() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("parseServiceEntry() = nil, want a node")
			}
			if got.Name != tt.want.Name {
				t.Errorf("Name = %q, want %q", got.Name, tt.want.Name)
			}
			if !got.Address.Equal(tt.want.Address) {
				t.Errorf("Address = %v, want %v", got.Address, tt.want.Address)
			}
			if got.Port != tt.want.Port {
				t.Errorf("Port = %d, want %d", got.Port, tt.want.Port)
			}
			if got.Hostname != tt.want.Hostname {
				t.Errorf("Hostname = %q, want %q", got.Hostname, tt.want.Hostname)
			}
			if len(got.TXTRecord) != len(tt.want.TXTRecord) {
				t.Errorf("TXTRecord = %v, want %v", got.TXTRecord, tt.want.TXTRecord)
			}
			for k, v := range tt.want.TXTRecord {
				if got.TXTRecord[k] != v {
					t.Errorf("TXTRecord[%q] = %q, want %q", k, got.TXTRecord[k], v)
				}
			}
		})
	}
}

func TestNode_BaseURL(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want string
	}{
		{
			name: "IPv4",
			node: &Node{Address: net.ParseIP("192.168.1.50"), Port: 6052},
			want: "http://192.168.1.50:6052",
		},
		{
			name: "IPv6 is bracketed",
			node: &Node{Address: net.ParseIP("fe80::1"), Port: 6052},
			want: "http://[fe80::1]:6052",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.BaseURL(); got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNode_Version(t *testing.T) {
	tests := []struct {
		name      string
		txtRecord map[string]string
		want      string
	}{
		{"with version", map[string]string{"version": "2024.12.0"}, "2024.12.0"},
		{"without version", map[string]string{"mac": "aabb"}, ""},
		{"nil TXT record", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &Node{TXTRecord: tt.txtRecord}
			if got := node.Version(); got != tt.want {
				t.Errorf("Version() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScanner_GetNodes(t *testing.T) {
	scanner := NewScanner("_esphomelib._tcp", "local.")

	// Initially empty
	if nodes := scanner.GetNodes(); len(nodes) != 0 {
		t.Errorf("GetNodes() should return empty slice, got %d nodes", len(nodes))
	}

	scanner.nodes["node-a"] = &Node{Name: "node-a", Address: net.ParseIP("192.168.1.50"), Port: 6052}
	scanner.nodes["node-b"] = &Node{Name: "node-b", Address: net.ParseIP("192.168.1.51"), Port: 6052}

	if nodes := scanner.GetNodes(); len(nodes) != 2 {
		t.Errorf("GetNodes() should return 2 nodes, got %d", len(nodes))
	}
}

func TestScanner_GetNodeByName(t *testing.T) {
	scanner := NewScanner("_esphomelib._tcp", "local.")
	scanner.nodes["hotcirc-sensors"] = &Node{
		Name:    "hotcirc-sensors",
		Address: net.ParseIP("192.168.1.50"),
		Port:    6052,
	}

	if node := scanner.GetNodeByName("hotcirc-sensors"); node == nil {
		t.Error("GetNodeByName() should find a known node")
	}
	if node := scanner.GetNodeByName("unknown"); node != nil {
		t.Errorf("GetNodeByName() for unknown name = %+v, want nil", node)
	}
}

func TestScanner_ResolveSensorURL(t *testing.T) {
	scanner := NewScanner("_esphomelib._tcp", "local.")
	scanner.nodes["hotcirc-sensors"] = &Node{
		Name:    "hotcirc-sensors",
		Address: net.ParseIP("192.168.1.50"),
		Port:    6052,
	}

	url, err := scanner.ResolveSensorURL("hotcirc-sensors", "outlet_temp")
	if err != nil {
		t.Fatalf("ResolveSensorURL() error: %v", err)
	}
	want := "http://192.168.1.50:6052/sensor/outlet_temp"
	if url != want {
		t.Errorf("ResolveSensorURL() = %q, want %q", url, want)
	}

	_, err = scanner.ResolveSensorURL("missing-node", "outlet_temp")
	if err == nil {
		t.Fatal("ResolveSensorURL() for unknown node should fail")
	}
	if !errors.Is(err, hcerrors.ErrNodeNotFound) {
		t.Errorf("error should wrap ErrNodeNotFound, got %v", err)
	}
}

func TestScanner_Discover_Timeout(t *testing.T) {
	scanner := NewScanner("_esphomelib._tcp", "local.")
	ctx := context.Background()

	// Test with very short timeout - should complete without hanging
	start := time.Now()
	nodes, err := scanner.Discover(ctx, 100*time.Millisecond)
	duration := time.Since(start)

	// In environments without network interfaces (like CI), browsing fails
	// with "failed to join any of these interfaces". That is expected there.
	if err != nil {
		if strings.Contains(err.Error(), "failed to join any of these interfaces") {
			t.Skip("Skipping test: no network interfaces available for mDNS")
		}
		t.Logf("Discover() returned error: %v (this may be expected in some environments)", err)
	}

	if duration > 500*time.Millisecond {
		t.Errorf("Discover() took too long: %v", duration)
	}

	if nodes == nil && err == nil {
		t.Error("Discover() returned nil nodes slice without error")
	}
}

func TestScanner_Discover_ContextCancellation(t *testing.T) {
	scanner := NewScanner("_esphomelib._tcp", "local.")
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel immediately
	cancel()

	nodes, err := scanner.Discover(ctx, 5*time.Second)

	if err != nil {
		if strings.Contains(err.Error(), "failed to join any of these interfaces") {
			t.Skip("Skipping test: no network interfaces available for mDNS")
		}
	}

	// Should handle cancellation gracefully; nodes may be nil on error.
	_ = nodes
	_ = err
}

func TestScanner_Discover_MultipleRuns(t *testing.T) {
	scanner := NewScanner("_esphomelib._tcp", "local.")
	ctx := context.Background()

	var hasNetworkError bool
	for i := 0; i < 3; i++ {
		nodes, err := scanner.Discover(ctx, 100*time.Millisecond)
		if err != nil {
			if strings.Contains(err.Error(), "failed to join any of these interfaces") {
				hasNetworkError = true
				continue
			}
			t.Errorf("Discover() run %d error = %v", i+1, err)
		}
		if nodes == nil && err == nil {
			t.Errorf("Discover() run %d returned nil nodes without error", i+1)
		}
	}

	if hasNetworkError {
		t.Skip("Skipping test: no network interfaces available for mDNS")
	}

	if scanner.nodes == nil {
		t.Error("scanner.nodes map is nil after multiple discoveries")
	}
}
