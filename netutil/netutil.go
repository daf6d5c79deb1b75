// Package netutil holds the small amount of IPv4 arithmetic needed to fill in
// default guest network settings.
package netutil

import (
	"fmt"
	"net/netip"
)

// MinHost returns the lowest usable host address of subnet, which is given in
// CIDR notation. "10.0.0.0/24" yields "10.0.0.1".
func MinHost(subnet string) (string, error) {
	prefix, err := netip.ParsePrefix(subnet)
	if err != nil {
		return "", fmt.Errorf("invalid subnet %q: %w", subnet, err)
	}
	prefix = prefix.Masked()

	network := prefix.Addr()
	if prefix.Bits() >= network.BitLen()-1 {
		// /31 and /32 have no network address to skip.
		return network.String(), nil
	}
	host := network.Next()
	if !host.IsValid() || !prefix.Contains(host) {
		return "", fmt.Errorf("subnet %q has no usable host address", subnet)
	}
	return host.String(), nil
}
