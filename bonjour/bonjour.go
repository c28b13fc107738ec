// Package bonjour finds SMB servers announced over multicast DNS.
package bonjour

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	log "github.com/sirupsen/logrus"
)

const (
	smbService  = "_smb._tcp"
	mdnsDomain  = "local."
	defaultWait = 3 * time.Second
)

// Server is one announced SMB service.
type Server struct {
	Instance string
	Host     string
	Port     int
	Addrs    []net.IP
	Text     []string
}

// Addr returns an address usable as client.Config.Address, preferring
// an IPv4 address over the announced host name.
func (s *Server) Addr() string {
	host := strings.TrimSuffix(s.Host, ".")
	for _, ip := range s.Addrs {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	if host == "" && len(s.Addrs) > 0 {
		host = s.Addrs[0].String()
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

func findInterfaceByAddress(targetIP string) ([]net.Interface, error) {
	if targetIP == "" {
		return nil, nil
	}
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, err
		}

		for _, addr := range addrs {
			switch v := addr.(type) {
			case *net.IPNet:
				if v.IP.String() == targetIP {
					return []net.Interface{iface}, nil
				}
			}
		}
	}

	return nil, fmt.Errorf("no interface found with IP address: %s", targetIP)
}

// Browse collects the SMB servers that answer within wait. With a non
// empty ifaceAddr only the interface owning that address is queried.
func Browse(ctx context.Context, wait time.Duration, ifaceAddr string) ([]Server, error) {
	if wait <= 0 {
		wait = defaultWait
	}

	var opts []zeroconf.ClientOption
	ifaces, err := findInterfaceByAddress(ifaceAddr)
	if err != nil {
		return nil, err
	}
	if ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	resolver, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Server)

	go func() {
		seen := map[string]bool{}
		var servers []Server
		for e := range entries {
			if seen[e.Instance] {
				continue
			}
			seen[e.Instance] = true

			log.Debugf("bonjour: %s at %s:%d", e.Instance, e.HostName, e.Port)

			servers = append(servers, fromEntry(e))
		}
		done <- servers
	}()

	if err := resolver.Browse(ctx, smbService, mdnsDomain, entries); err != nil {
		// the resolver closes entries once its context is gone
		cancel()
		<-done
		return nil, err
	}

	servers := <-done
	sort.Slice(servers, func(i, j int) bool { return servers[i].Instance < servers[j].Instance })

	return servers, nil
}

func fromEntry(e *zeroconf.ServiceEntry) Server {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)

	return Server{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		Addrs:    addrs,
		Text:     e.Text,
	}
}
