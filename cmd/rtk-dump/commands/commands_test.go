package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrotk/rtk-go/pkg/discovery"
	"github.com/retrotk/rtk-go/pkg/log"
)

const (
	connA = "abc12345-6789-0123-4567-890abcdef012"
	connB = "def67890-1234-5678-9abc-def012345678"
)

var t0 = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func sampleEvents() []log.Event {
	return []log.Event{
		{
			Timestamp: t0, ConnectionID: connA, Slot: 0, RemoteAddr: "10.0.0.7:51000",
			Direction: log.DirectionIn, Layer: log.LayerSession, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{NewState: "ACTIVE", Reason: "accepted"},
		},
		{
			Timestamp: t0.Add(time.Second), ConnectionID: connA, Slot: 0,
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryFrame,
			Frame: log.NewFrameEvent(10, 0x12, 1, []byte{0xAA, 0x00, 0x07}, false),
		},
		{
			Timestamp: t0.Add(2 * time.Second), ConnectionID: connA, Slot: 0,
			Direction: log.DirectionOut, Layer: log.LayerTransport, Category: log.CategoryFrame,
			Frame: log.NewFrameEvent(9, 0, 0, []byte{0xAA, 0x00, 0x06}, true),
		},
		{
			Timestamp: t0.Add(3 * time.Second), ConnectionID: connB, Slot: 3,
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerWire, Message: "bad magic", Context: "frame header"},
		},
	}
}

func writeCapture(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.rtkcap")
	fl, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		fl.Log(e)
	}
	require.NoError(t, fl.Close())
	return path
}

func TestFormatFrameEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[1])
	out := buf.String()

	assert.Contains(t, out, "2026-01-28T10:15:33.123456Z")
	assert.Contains(t, out, "[conn:abc12345]")
	assert.Contains(t, out, "[slot:0]")
	assert.Contains(t, out, "IN  WIRE Frame")
	assert.Contains(t, out, "Size: 10 bytes")
	assert.Contains(t, out, "Opcode: 0x12  Seq: 1")
	assert.Contains(t, out, "Data: aa0007")
}

func TestFormatRawFrameOmitsOpcode(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[2])

	assert.Contains(t, buf.String(), "OUT TRANSPORT Frame")
	assert.NotContains(t, buf.String(), "Opcode")
}

func TestFormatStateAndError(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[0])
	formatEvent(&buf, sampleEvents()[3])
	out := buf.String()

	assert.Contains(t, out, "-> ACTIVE")
	assert.Contains(t, out, "Reason: accepted")
	assert.Contains(t, out, "Remote: 10.0.0.7:51000")
	assert.Contains(t, out, "Message: bad magic")
	assert.Contains(t, out, "Context: frame header")
}

func TestShortenConnID(t *testing.T) {
	assert.Equal(t, "abc12345", shortenConnID(connA))
	assert.Equal(t, "abc", shortenConnID("abc"))
}

func TestParseFlags(t *testing.T) {
	l, err := ParseLayer("WIRE")
	require.NoError(t, err)
	assert.Equal(t, log.LayerWire, l)
	_, err = ParseLayer("service")
	assert.Error(t, err)

	d, err := ParseDirection("Out")
	require.NoError(t, err)
	assert.Equal(t, log.DirectionOut, d)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)

	c, err := ParseCategory("error")
	require.NoError(t, err)
	assert.Equal(t, log.CategoryError, c)
	_, err = ParseCategory("message")
	assert.Error(t, err)
}

func TestFilterOptionsBuild(t *testing.T) {
	f, err := FilterOptions{Slot: "3", Opcode: "0x12", Layer: "wire", TimeStart: "2026-01-28T10:00:00Z"}.Build()
	require.NoError(t, err)
	require.NotNil(t, f.Slot)
	assert.Equal(t, 3, *f.Slot)
	require.NotNil(t, f.Opcode)
	assert.Equal(t, uint8(0x12), *f.Opcode)
	require.NotNil(t, f.Layer)
	require.NotNil(t, f.TimeStart)

	for _, bad := range []FilterOptions{
		{Slot: "-1"},
		{Slot: "x"},
		{Opcode: "0x100"},
		{TimeEnd: "yesterday"},
		{Direction: "up"},
	} {
		_, err := bad.Build()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestRunView(t *testing.T) {
	path := writeCapture(t, sampleEvents())

	var buf bytes.Buffer
	require.NoError(t, RunView(path, log.Filter{}, &buf))
	assert.Equal(t, 4, strings.Count(buf.String(), "[conn:"))

	slot := 3
	buf.Reset()
	require.NoError(t, RunView(path, log.Filter{Slot: &slot}, &buf))
	assert.Equal(t, 1, strings.Count(buf.String(), "[conn:"))
	assert.Contains(t, buf.String(), "bad magic")
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.rtkcap"), log.Filter{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunFilter(t *testing.T) {
	path := writeCapture(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.rtkcap")

	n, err := RunFilter(path, out, FilterOptions{Opcode: "0x12"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r, err := log.NewReader(out)
	require.NoError(t, err)
	defer r.Close()
	e, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, e.Frame)
	assert.Equal(t, uint8(0x12), e.Frame.Opcode)
}

func TestRunFilterBadOptions(t *testing.T) {
	path := writeCapture(t, sampleEvents())
	_, err := RunFilter(path, filepath.Join(t.TempDir(), "out.rtkcap"), FilterOptions{Layer: "bogus"})
	assert.Error(t, err)
}

func TestCollectStats(t *testing.T) {
	path := writeCapture(t, sampleEvents())

	stats, err := CollectStats(path)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalEvents)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, map[uint8]int{0x12: 1}, stats.Opcodes)
	require.Len(t, stats.Connections, 2)

	a := stats.Connections[connA]
	assert.Equal(t, 3, a.Events)
	assert.Equal(t, "10.0.0.7:51000", a.Remote)
	assert.Equal(t, 10, a.BytesIn)
	assert.Equal(t, 9, a.BytesOut)
	assert.Equal(t, 3, stats.Connections[connB].Slot)
	assert.True(t, stats.TimeRange.Start.Equal(t0))
	assert.True(t, stats.TimeRange.End.Equal(t0.Add(3*time.Second)))
}

func TestRunStatsOutput(t *testing.T) {
	path := writeCapture(t, sampleEvents())

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	out := buf.String()
	assert.Contains(t, out, "Total Events: 4")
	assert.Contains(t, out, "Connections: 2")
	assert.Contains(t, out, "0x12")
	assert.Contains(t, out, "Bytes: 10 in, 9 out")
	assert.Contains(t, out, "Errors: 1")
}

func TestExportJSONL(t *testing.T) {
	path := writeCapture(t, sampleEvents())
	r, err := log.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	require.NoError(t, Export(r, "jsonl", &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	var e log.Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	require.NotNil(t, e.Frame)
	assert.Equal(t, uint8(0x12), e.Frame.Opcode)
}

func TestExportCSV(t *testing.T) {
	path := writeCapture(t, sampleEvents())
	r, err := log.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	require.NoError(t, Export(r, "csv", &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "timestamp,connection_id,slot,direction,layer,category,type,size,opcode", lines[0])
	assert.Contains(t, lines[2], ",IN,WIRE,FRAME,Frame,10,0x12")
	assert.True(t, strings.HasSuffix(lines[3], ",Frame,9,"), "raw frames carry no opcode")
}

func TestExportUnknownFormat(t *testing.T) {
	path := writeCapture(t, nil)
	r, err := log.NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Error(t, Export(r, "xml", &bytes.Buffer{}))
}

func TestPrintServers(t *testing.T) {
	var buf bytes.Buffer
	printServers(&buf, nil)
	assert.Equal(t, "No servers found\n", buf.String())

	buf.Reset()
	printServers(&buf, map[string]*discovery.Service{
		"beta":  {Instance: "beta", Host: "b.local.", Port: 2001},
		"alpha": {Instance: "alpha", Host: "a.local.", Port: 2000, Addresses: []string{"10.0.0.2"},
			Info: discovery.ServerInfo{Revision: "abc123", Capacity: 64, MaxFrameLength: 8192}},
	})
	out := buf.String()
	assert.Contains(t, out, "Servers: 2")
	assert.Less(t, strings.Index(out, "alpha"), strings.Index(out, "beta"))
	assert.Contains(t, out, "a.local.:2000 [10.0.0.2]")
	assert.Contains(t, out, "rev abc123, capacity 64, max frame 8192")
	assert.Contains(t, out, "rev unknown")
}
