package discovery

import (
	"errors"
	"time"
)

const (
	// ServiceType is the DNS-SD service type.
	ServiceType = "_retrotk._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default game port.
	DefaultPort = 2000

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// TXTVersion is the TXT record schema version.
	TXTVersion = "1"
)

// Errors.
var (
	ErrInvalidInstance = errors.New("invalid instance name")
	ErrInvalidTXT      = errors.New("invalid TXT record")
)

// ServerInfo describes a server to announce.
type ServerInfo struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Port is the game listener port.
	Port uint16

	// Revision is the build revision.
	Revision string

	// Capacity is the session registry capacity.
	Capacity int

	// MaxFrameLength is the largest accepted frame length field.
	MaxFrameLength int
}

// Service is an announced server found by browsing.
type Service struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string
	Info      ServerInfo
}

// AdvertiserConfig configures an advertiser.
type AdvertiserConfig struct {
	// Interface restricts announcements to one interface. Empty means all.
	Interface string

	// TTL is the DNS record TTL. Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: 120 * time.Second}
}

// BrowserConfig configures a browser.
type BrowserConfig struct {
	// Interface restricts browsing to one interface. Empty means all.
	Interface string
}
