package transport

import (
	"fmt"
	"net"

	srunerr "github.com/atinyakov/srun-login/internal/errors"
)

func resolveLocalAddr(cfg Config) (*net.TCPAddr, error) {
	if cfg.LocalAddr != "" {
		ip := net.ParseIP(cfg.LocalAddr)
		if ip == nil {
			return nil, fmt.Errorf("invalid local address %q", cfg.LocalAddr)
		}
		return &net.TCPAddr{IP: ip}, nil
	}
	if cfg.Interface == "" {
		return nil, nil
	}

	iface, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, srunerr.Wrapf(srunerr.ErrInterfaceNotFound, "interface %s", cfg.Interface)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("list addresses of %s: %w", cfg.Interface, err)
	}
	ip := pickAddr(addrs)
	if ip == nil {
		return nil, srunerr.Wrapf(srunerr.ErrInterfaceNoAddress, "interface %s", cfg.Interface)
	}
	return &net.TCPAddr{IP: ip}, nil
}

// pickAddr returns the first IPv4 address, or the first IPv6 one when there is no IPv4.
func pickAddr(addrs []net.Addr) net.IP {
	var v6 net.IP
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4
		}
		if v6 == nil && ip.To16() != nil {
			v6 = ip
		}
	}
	return v6
}
