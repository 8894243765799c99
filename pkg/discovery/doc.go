// Package discovery announces a running server on the local network over
// mDNS (DNS-SD) and finds announced servers.
//
// Servers register an instance of ServiceType carrying TXT records:
//
//	txtvers=1
//	rev=<build revision>
//	cap=<session capacity>
//	fl=<max frame length>
//
// Operators use the browser to locate test servers on a LAN without
// knowing their addresses.
package discovery
