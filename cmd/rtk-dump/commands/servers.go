package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/retrotk/rtk-go/pkg/discovery"
)

// RunServers browses for advertised servers for timeout and prints them.
func RunServers(ctx context.Context, iface string, timeout time.Duration, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: iface})
	found, err := browser.Browse(ctx)
	if err != nil {
		return fmt.Errorf("failed to browse: %w", err)
	}

	servers := make(map[string]*discovery.Service)
	for svc := range found {
		servers[svc.Instance] = svc
	}

	printServers(w, servers)
	return nil
}

func printServers(w io.Writer, servers map[string]*discovery.Service) {
	if len(servers) == 0 {
		fmt.Fprintln(w, "No servers found")
		return
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "Servers: %d\n", len(servers))
	for _, name := range names {
		svc := servers[name]
		fmt.Fprintf(w, "  %s  %s:%d", svc.Instance, svc.Host, svc.Port)
		if len(svc.Addresses) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(svc.Addresses, ", "))
		}
		fmt.Fprintln(w)
		info := svc.Info
		fmt.Fprintf(w, "      rev %s, capacity %d, max frame %d\n",
			orUnknown(info.Revision), info.Capacity, info.MaxFrameLength)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
