package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/retrotk/rtk-go/pkg/log"
)

// FilterOptions holds filter criteria as given on the command line.
// Empty fields match everything.
type FilterOptions struct {
	ConnID    string
	Slot      string
	Opcode    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// Build parses the options into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{ConnectionID: o.ConnID}

	if o.Slot != "" {
		slot, err := strconv.Atoi(o.Slot)
		if err != nil || slot < 0 {
			return filter, fmt.Errorf("invalid slot: %s", o.Slot)
		}
		filter.Slot = &slot
	}

	if o.Opcode != "" {
		op, err := strconv.ParseUint(o.Opcode, 0, 8)
		if err != nil {
			return filter, fmt.Errorf("invalid opcode: %s", o.Opcode)
		}
		opcode := uint8(op)
		filter.Opcode = &opcode
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if o.Layer != "" {
		l, err := ParseLayer(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}

	if o.Direction != "" {
		d, err := ParseDirection(o.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}

	if o.Category != "" {
		c, err := ParseCategory(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}

	return filter, nil
}

// RunFilter copies the events of path matching opts into output and
// returns how many were written.
func RunFilter(path, output string, opts FilterOptions) (int, error) {
	filter, err := opts.Build()
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Close()
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}

	if err := logger.Close(); err != nil {
		return count, fmt.Errorf("failed to close output file: %w", err)
	}
	if n := logger.Dropped(); n > 0 {
		return count, fmt.Errorf("failed to write %d events", n)
	}
	return count, nil
}
