package config

import (
	"github.com/latticenet/latticenode/util/network"
)

// defaultChannelPort is appended to any listener or peer address that
// doesn't already specify a port.
const defaultChannelPort = "7075"

// NormalizedListeners returns Listeners with defaultChannelPort applied
// to any entry missing a port, duplicates removed.
func (c *Config) NormalizedListeners() ([]string, error) {
	return network.NormalizeAddresses(append([]string{}, c.Listeners...), defaultChannelPort)
}

// NormalizedAddPeers returns AddPeers with defaultChannelPort applied to
// any entry missing a port, duplicates removed.
func (c *Config) NormalizedAddPeers() ([]string, error) {
	return network.NormalizeAddresses(append([]string{}, c.AddPeers...), defaultChannelPort)
}
