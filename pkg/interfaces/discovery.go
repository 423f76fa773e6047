// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package interfaces

import (
	"context"
	"net"
	"time"
)

// Node represents a discovered sensor node.
// Redeclared here to avoid circular dependencies.
type Node struct {
	Name      string
	Address   net.IP
	Port      int
	TXTRecord map[string]string
	Hostname  string
}

// NodeScanner defines the interface for sensor node discovery.
// Implementations should support mDNS/DNS-SD discovery protocols.
type NodeScanner interface {
	// Discover performs a node discovery scan with the given timeout
	Discover(ctx context.Context, timeout time.Duration) ([]*Node, error)

	// GetNodes returns all discovered nodes
	GetNodes() []*Node

	// GetNodeByName returns a node by its instance name, or nil if not found
	GetNodeByName(name string) *Node
}
