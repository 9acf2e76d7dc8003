package netif

import "testing"

// Up/Down/SetIPv4Address/InstallProxyRoute all require a real netlink
// socket and an existing kernel interface, so they aren't exercised by
// unit tests; connmgr tests run with no NetIf, so the calling convention
// is not covered there either.
func TestNewConstructsManager(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("expected non-nil Manager")
	}
}
