// Package config holds the tunable defaults for both binaries. Flags
// overlay these; the zero value is never used directly.
package config

import "time"

// ServerConfig configures the broadcast side.
type ServerConfig struct {
	SendPort     uint16
	ListenPort   uint16 // 0 means same as SendPort
	BroadcastIPs []string
	Name         string // empty means generated
	Dir          string
	HashlistPath string // empty means hash Dir at startup
	ChunkSize    uint16
	RateMin      int
	RateMax      int
	MetricsAddr  string // empty disables the endpoint
}

// DefaultServerConfig returns the stock server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		SendPort:     1337,
		BroadcastIPs: []string{"255.255.255.255"},
		Dir:          ".",
		ChunkSize:    512,
		RateMin:      100,
		RateMax:      10000,
	}
}

// ClientConfig configures the receive side.
type ClientConfig struct {
	Port              uint16
	BindIP            string
	Name              string // empty means generated
	ServerName        string // empty means join any server
	RequestIntervalUS uint64 // 0 disables active chunk requests
	OutDir            string
	PingPeriod        time.Duration
	PongThreshold     int
}

// DefaultClientConfig returns the stock client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Port:              1337,
		BindIP:            "0.0.0.0",
		RequestIntervalUS: 100_000,
		OutDir:            ".",
		PingPeriod:        time.Second,
		PongThreshold:     10,
	}
}
