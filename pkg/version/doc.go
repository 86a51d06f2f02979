// Package version defines the dataset version identifier, the "no
// version" sentinel, and the Minter capability that hands each producer
// cycle its version id.
package version
