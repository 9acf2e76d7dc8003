// Command connmand is the connection (packet-data) core daemon: it
// tracks modem attach/registration state, owns Primary Context
// profiles, drives activation against a vendor dialect, and publishes
// the result on the bus.
package main

import (
	"os"

	"github.com/ofono-connman/connmand/cmd/connmand/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
