package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXT record keys.
const (
	txtKeyVersion  = "txtvers"
	txtKeyRevision = "rev"
	txtKeyCapacity = "cap"
	txtKeyFrameLen = "fl"
)

// EncodeTXT renders info as DNS-SD TXT strings in a stable order.
func EncodeTXT(info *ServerInfo) []string {
	txt := []string{txtKeyVersion + "=" + TXTVersion}
	if info.Revision != "" {
		txt = append(txt, txtKeyRevision+"="+info.Revision)
	}
	if info.Capacity > 0 {
		txt = append(txt, txtKeyCapacity+"="+strconv.Itoa(info.Capacity))
	}
	if info.MaxFrameLength > 0 {
		txt = append(txt, txtKeyFrameLen+"="+strconv.Itoa(info.MaxFrameLength))
	}
	return txt
}

// DecodeTXT parses TXT strings produced by EncodeTXT. Unknown keys are
// ignored; a missing or different txtvers is an error.
func DecodeTXT(txt []string) (ServerInfo, error) {
	var (
		info    ServerInfo
		version string
	)
	for _, rec := range txt {
		key, value, ok := strings.Cut(rec, "=")
		if !ok {
			continue
		}
		switch key {
		case txtKeyVersion:
			version = value
		case txtKeyRevision:
			info.Revision = value
		case txtKeyCapacity:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return ServerInfo{}, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, key, value)
			}
			info.Capacity = n
		case txtKeyFrameLen:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return ServerInfo{}, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, key, value)
			}
			info.MaxFrameLength = n
		}
	}
	if version != TXTVersion {
		return ServerInfo{}, fmt.Errorf("%w: txtvers %q", ErrInvalidTXT, version)
	}
	return info, nil
}

// ValidateInstance checks an instance name against DNS label limits.
func ValidateInstance(name string) error {
	if name == "" || len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: %q", ErrInvalidInstance, name)
	}
	return nil
}
