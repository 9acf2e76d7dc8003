// Package netif drives the kernel network interface side effects of a
// context activation: bringing the data link up,
// assigning the address block the driver reported, and installing a
// host route to the MMS proxy so it stays reachable through the
// context's own interface rather than the default route.
package netif

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/ofono-connman/connmand/logging"

	"github.com/rs/zerolog"
)

// Manager implements connmgr.NetIf against the real kernel netlink
// socket.
type Manager struct {
	log zerolog.Logger
}

// New creates a netlink-backed Manager.
func New() *Manager {
	return &Manager{log: logging.For("netif")}
}

func (m *Manager) link(name string) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("netif: lookup %s: %w", name, err)
	}
	return link, nil
}

// Up brings the named interface up.
func (m *Manager) Up(name string) error {
	link, err := m.link(name)
	if err != nil {
		return err
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("netif: set %s up: %w", name, err)
	}
	return nil
}

// Down brings the named interface down and flushes its addresses.
// The Connection Manager does not call it on deactivation.
func (m *Manager) Down(name string) error {
	link, err := m.link(name)
	if err != nil {
		return err
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err == nil {
		for _, a := range addrs {
			_ = netlink.AddrDel(link, &a)
		}
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return fmt.Errorf("netif: set %s down: %w", name, err)
	}
	return nil
}

// SetIPv4Address assigns a static IPv4 address/netmask pair to the
// interface, as reported by a driver that returned static settings.
func (m *Manager) SetIPv4Address(name, address, netmask string) error {
	link, err := m.link(name)
	if err != nil {
		return err
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("netif: invalid address %q", address)
	}
	mask := net.IPMask(net.ParseIP(netmask).To4())
	if netmask == "" || mask == nil {
		mask = net.CIDRMask(32, 32)
	}
	addr := &netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: mask}}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("netif: add address to %s: %w", name, err)
	}
	return nil
}

// InstallProxyRoute adds a host route for an MMS proxy through iface,
// so sending MMS traffic doesn't depend on the default route.
func (m *Manager) InstallProxyRoute(iface, host string) error {
	link, err := m.link(iface)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, lerr := net.LookupIP(host)
		if lerr != nil || len(ips) == 0 {
			return fmt.Errorf("netif: resolve proxy host %q: %w", host, lerr)
		}
		ip = ips[0]
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)},
	}
	if err := netlink.RouteAdd(route); err != nil {
		return fmt.Errorf("netif: add proxy route via %s: %w", iface, err)
	}
	return nil
}

// RemoveProxyRoute undoes InstallProxyRoute. The Connection Manager
// does not call it on deactivation.
func (m *Manager) RemoveProxyRoute(iface, host string) error {
	link, err := m.link(iface)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, lerr := net.LookupIP(host)
		if lerr != nil || len(ips) == 0 {
			return nil
		}
		ip = ips[0]
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)},
	}
	if err := netlink.RouteDel(route); err != nil {
		m.log.Debug().Err(err).Str("iface", iface).Msg("proxy route already gone")
	}
	return nil
}
