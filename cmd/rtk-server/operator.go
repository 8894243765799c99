package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/retrotk/rtk-go/pkg/loop"
	"github.com/retrotk/rtk-go/pkg/session"
	"github.com/retrotk/rtk-go/pkg/timer"
)

// Console command results.
const (
	cmdOK      = 0
	cmdUnknown = 1
	cmdFailed  = 2
)

// errKicked is the teardown cause for sessions dropped by an operator.
var errKicked = errors.New("kicked by operator")

const operatorHelp = `Commands:
  help            Show this help
  status          Show loop status
  sessions        List sessions
  kick <slot>     Disconnect the session in slot
  timers          Show pending timer count
  quit            Shut down the server
`

// operator runs console commands on the loop goroutine.
type operator struct {
	registry *session.Registry
	timers   *timer.Queue
	status   func() loop.Status
	out      io.Writer
}

func (o *operator) parse(line string) int {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return cmdOK
	}

	switch strings.ToLower(fields[0]) {
	case "help", "?":
		fmt.Fprint(o.out, operatorHelp)
	case "status":
		o.printStatus()
	case "sessions":
		o.printSessions()
	case "kick":
		return o.kick(fields[1:])
	case "timers":
		fmt.Fprintf(o.out, "%d timers pending\n", o.timers.Len())
	default:
		fmt.Fprintf(o.out, "unknown command %q, try help\n", fields[0])
		return cmdUnknown
	}
	return cmdOK
}

func (o *operator) printStatus() {
	if o.status == nil {
		return
	}
	st := o.status()
	fmt.Fprintf(o.out, "tick %d, %d iterations, %d/%d sessions, %d timers\n",
		st.Tick, st.Iterations, st.Sessions, st.Capacity, st.Timers)
}

func (o *operator) printSessions() {
	fmt.Fprintf(o.out, "%d/%d sessions\n", o.registry.Len(), o.registry.Capacity())
	o.registry.Each(func(s *session.Session) {
		fmt.Fprintf(o.out, "  [%d] %s %s %s pending=%d\n",
			s.Slot(), s.ID().ConnID.String()[:8], s.RemoteAddr(), s.State(), s.PendingOutput())
	})
}

func (o *operator) kick(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(o.out, "usage: kick <slot>")
		return cmdFailed
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(o.out, "invalid slot %q\n", args[0])
		return cmdFailed
	}
	if _, ok := o.registry.Lookup(slot); !ok {
		fmt.Fprintf(o.out, "no session in slot %d\n", slot)
		return cmdFailed
	}
	o.registry.TeardownImmediate(slot, errKicked)
	fmt.Fprintf(o.out, "kicked slot %d\n", slot)
	return cmdOK
}
