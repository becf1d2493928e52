// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ha

import (
	"net"

	"github.com/juju/errors"

	haerrors "github.com/clustervision/luna2-daemon-sub002/domain/ha/errors"
)

// Identify returns the roster entry whose address is bound to one of the
// input local addresses. Beacon entries are skipped so that a controller
// holding the shared address is not mistaken for the beacon itself.
func Identify(roster []Controller, addrs []net.Addr) (Controller, error) {
	local := make(map[string]bool)
	for _, addr := range addrs {
		var ip net.IP
		switch a := addr.(type) {
		case *net.IPNet:
			ip = a.IP
		case *net.IPAddr:
			ip = a.IP
		default:
			ip = net.ParseIP(addr.String())
		}
		if ip != nil {
			local[ip.String()] = true
		}
	}

	for _, ctrl := range roster {
		if ctrl.Beacon {
			continue
		}
		for _, candidate := range []string{ctrl.IPv4, ctrl.IPv6} {
			if candidate == "" {
				continue
			}
			ip := net.ParseIP(candidate)
			if ip != nil && local[ip.String()] {
				return ctrl, nil
			}
		}
	}
	return Controller{}, errors.Trace(haerrors.IdentityNotFound)
}

// Peers returns the roster without the input controller and without
// beacon entries.
func Peers(roster []Controller, me string) []Controller {
	var peers []Controller
	for _, ctrl := range roster {
		if ctrl.Hostname == me || ctrl.Beacon {
			continue
		}
		peers = append(peers, ctrl)
	}
	return peers
}

// Lookup returns the named controller from the roster.
func Lookup(roster []Controller, hostname string) (Controller, bool) {
	for _, ctrl := range roster {
		if ctrl.Hostname == hostname {
			return ctrl, true
		}
	}
	return Controller{}, false
}
