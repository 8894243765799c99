package discovery

import (
	"net"
	"strings"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTXTRoundTrip(t *testing.T) {
	info := &ServerInfo{Revision: "abc123", Capacity: 1024, MaxFrameLength: 8192}
	txt := EncodeTXT(info)
	assert.Equal(t, []string{"txtvers=1", "rev=abc123", "cap=1024", "fl=8192"}, txt)

	got, err := DecodeTXT(txt)
	require.NoError(t, err)
	assert.Equal(t, *info, got)
}

func TestTXTOmitsEmptyFields(t *testing.T) {
	assert.Equal(t, []string{"txtvers=1"}, EncodeTXT(&ServerInfo{}))
}

func TestDecodeTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  []string
	}{
		{"missing version", []string{"cap=1"}},
		{"wrong version", []string{"txtvers=2"}},
		{"bad capacity", []string{"txtvers=1", "cap=lots"}},
		{"negative frame length", []string{"txtvers=1", "fl=-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTXT(tt.txt)
			assert.ErrorIs(t, err, ErrInvalidTXT)
		})
	}
}

func TestDecodeTXTIgnoresUnknown(t *testing.T) {
	info, err := DecodeTXT([]string{"txtvers=1", "garbage", "zz=9"})
	require.NoError(t, err)
	assert.Equal(t, ServerInfo{}, info)
}

func TestValidateInstance(t *testing.T) {
	assert.NoError(t, ValidateInstance("rtk"))
	assert.ErrorIs(t, ValidateInstance(""), ErrInvalidInstance)
	assert.ErrorIs(t, ValidateInstance(strings.Repeat("x", 64)), ErrInvalidInstance)
}

func TestAdvertiseRejectsBadInstance(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	assert.ErrorIs(t, a.Advertise(&ServerInfo{}), ErrInvalidInstance)
	a.Stop()
}

func newEntry(instance string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: instance, Service: ServiceType, Domain: Domain},
	}
}

func TestEntryToService(t *testing.T) {
	entry := newEntry("rtk-1")
	entry.HostName = "box.local."
	entry.Port = 2000
	entry.Text = []string{"txtvers=1", "cap=16"}
	entry.AddrIPv4 = []net.IP{net.IPv4(10, 0, 0, 7)}

	svc := entryToService(entry)
	require.NotNil(t, svc)
	assert.Equal(t, "rtk-1", svc.Instance)
	assert.Equal(t, uint16(2000), svc.Port)
	assert.Equal(t, []string{"10.0.0.7"}, svc.Addresses)
	assert.Equal(t, 16, svc.Info.Capacity)

	entry.Text = nil
	assert.Nil(t, entryToService(entry), "entries without our TXT schema are skipped")
}

func TestMergeAndRemoveAddresses(t *testing.T) {
	merged := mergeAddresses([]string{"10.0.0.7"}, []string{"10.0.0.7", "fe80::1"})
	assert.Equal(t, []string{"10.0.0.7", "fe80::1"}, merged)

	entry := newEntry("rtk-1")
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	assert.Equal(t, []string{"10.0.0.7"}, removeAddresses(merged, entry))
}
