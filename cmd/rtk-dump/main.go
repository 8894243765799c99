// Command rtk-dump reads packet capture files written by rtk-server
// -capture-file and browses for servers on the local network.
//
// Usage:
//
//	rtk-dump <command> [flags] <file.rtkcap>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSON or CSV format
//	filter   Filter capture file and write to new file
//	stats    Show statistics about the capture file
//	servers  List servers announced over mDNS
//
// Examples:
//
//	# View inbound wire frames of slot 3
//	rtk-dump view -layer wire -direction in -slot 3 packets.rtkcap
//
//	# Keep only opcode 0x12 frames
//	rtk-dump filter -opcode 0x12 -o login.rtkcap packets.rtkcap
//
//	# Export to JSONL
//	rtk-dump export -format jsonl packets.rtkcap
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/retrotk/rtk-go/cmd/rtk-dump/commands"
)

const usage = `rtk-dump - Packet Capture Analyzer

Usage:
  rtk-dump <command> [flags] <file.rtkcap>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSON or CSV format
  filter   Filter capture file and write to new file
  stats    Show statistics about the capture file
  servers  List servers announced over mDNS

Use "rtk-dump <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "servers":
		runServers(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the shared filter flags on fs.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	var opts commands.FilterOptions
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.Slot, "slot", "", "Filter by registry slot")
	fs.StringVar(&opts.Opcode, "opcode", "", "Filter by frame opcode (e.g. 0x12)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, session)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (frame, state, error)")
	return &opts
}

func newFlagSet(name, synopsis, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "rtk-dump %s - %s\n\nUsage:\n  rtk-dump %s [flags] %s\n\nFlags:\n",
			name, synopsis, name, args)
		fs.PrintDefaults()
	}
	return fs
}

// pathArg parses args and returns the single capture file argument.
func pathArg(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View capture file in human-readable format", "<file.rtkcap>")
	opts := filterFlags(fs)
	path := pathArg(fs, args)

	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export capture file to JSON or CSV format", "<file.rtkcap>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := pathArg(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter capture file and write to new file", "<file.rtkcap>")
	output := fs.String("o", "", "Output file (required)")
	opts := filterFlags(fs)
	path := pathArg(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, *output, *opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the capture file", "<file.rtkcap>")
	path := pathArg(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}

func runServers(args []string) {
	fs := newFlagSet("servers", "List servers announced over mDNS", "")
	iface := fs.String("interface", "", "Network interface to browse (default: all)")
	timeout := fs.Duration("timeout", 3*time.Second, "How long to browse")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := commands.RunServers(context.Background(), *iface, *timeout, os.Stdout); err != nil {
		fail(err)
	}
}
