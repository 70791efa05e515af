// Package merkle computes the Merkle roots that commit snapshots and blocks.
//
// Leaves are hashed with the configured HashFunc (SHA3-256 by default),
// pairs are hashed over their concatenation, and an odd node at the end of a
// level is paired with itself.
package merkle
