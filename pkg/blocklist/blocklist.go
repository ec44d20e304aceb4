package blocklist

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
)

// Manager holds client addresses that may not connect
type Manager struct {
	exactIPs map[string]bool // exact address matches
	networks []*net.IPNet    // CIDR ranges like 10.0.0.0/8
	mu       sync.RWMutex
}

// Config represents the JSON structure
type Config struct {
	BlockedClients []string `json:"blocked_clients"`
}

// NewManager creates an empty blocklist
func NewManager() *Manager {
	return &Manager{
		exactIPs: make(map[string]bool),
		networks: make([]*net.IPNet, 0),
	}
}

// LoadFromFile replaces the blocklist with the entries in a JSON file
func (m *Manager) LoadFromFile(filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	return m.Load(config.BlockedClients)
}

// Load replaces the blocklist with the given addresses and CIDR ranges
func (m *Manager) Load(entries []string) error {
	exact := make(map[string]bool)
	networks := make([]*net.IPNet, 0)

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return fmt.Errorf("invalid blocklist range %q: %w", entry, err)
			}
			networks = append(networks, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return fmt.Errorf("invalid blocklist address %q", entry)
		}
		exact[ip.String()] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.exactIPs = exact
	m.networks = networks
	return nil
}

// IsBlocked checks a remote address (host or host:port)
func (m *Manager) IsBlocked(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.exactIPs[ip.String()] {
		return true
	}
	for _, n := range m.networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Len returns the number of entries
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.exactIPs) + len(m.networks)
}
