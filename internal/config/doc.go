// Package config provides the tunable constants that govern the gossip,
// tree, and unicast protocols, along with the validation needed to keep a
// node from being configured into a degenerate state (e.g. a retry timeout
// of zero).
package config
