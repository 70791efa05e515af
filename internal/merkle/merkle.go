package merkle

import "errors"

// ErrNoLeaves is returned when a root is requested over an empty set.
var ErrNoLeaves = errors.New("merkle: no leaves")

// Tree computes the full Merkle tree over leaves.
//
// structure is:
//  1. N * leaf digests
//  2. level 1..m digests
//  3. merkle root digest (last element)
func Tree(leaves []Digest, fn HashFunc) []Digest {
	if fn == nil {
		fn = NewDigest
	}
	count := len(leaves)

	total := 1
	for n := count; n > 1; n = (n + 1) / 2 {
		total += n
	}

	tree := make([]Digest, total)
	copy(tree, leaves)

	n := count
	j := 0
	for width := count; width > 1; width = (width + 1) / 2 {
		for i := 0; i < width; i += 2 {
			k := j + 1
			if i+1 == width {
				k = j // odd node pairs with itself
			}
			pair := make([]byte, 0, 2*DigestLength)
			pair = append(pair, tree[j][:]...)
			pair = append(pair, tree[k][:]...)
			tree[n] = fn(pair)
			n++
			j = k + 1
		}
	}
	return tree
}

// Root hashes each string leaf with fn and returns the root of the tree.
// A single leaf is hashed once and is its own root.
func Root(data []string, fn HashFunc) (Digest, error) {
	if len(data) == 0 {
		return Digest{}, ErrNoLeaves
	}
	if fn == nil {
		fn = NewDigest
	}
	leaves := make([]Digest, len(data))
	for i, d := range data {
		leaves[i] = fn([]byte(d))
	}
	tree := Tree(leaves, fn)
	return tree[len(tree)-1], nil
}

// RootHex is Root rendered as hex.
func RootHex(data []string, fn HashFunc) (string, error) {
	root, err := Root(data, fn)
	if err != nil {
		return "", err
	}
	return root.String(), nil
}
