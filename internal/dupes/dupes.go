// Package dupes partitions a hashed library into groups of mutual
// near-duplicates.
package dupes

import (
	"sort"

	"github.com/phajek/mediascan/internal/constants"
	"github.com/phajek/mediascan/internal/media"
	"github.com/phajek/mediascan/internal/phash"
)

// Group is an ephemeral duplicate group: one representative plus the members
// that matched it. Similarity records the threshold that qualified
// membership, not a per-pair score. Groups are computed on demand and never
// persisted.
type Group struct {
	RepresentativeID string   `json:"representative_id"`
	MemberIDs        []string `json:"member_ids"`
	Similarity       float64  `json:"similarity"`
}

// Size returns the number of items in the group including the representative.
func (g Group) Size() int {
	return 1 + len(g.MemberIDs)
}

// Strategy finds duplicate groups among hashed items. Implementations must
// be deterministic for the same input set and must produce a partition: no
// item appears in two groups, and items without a hash appear in none.
type Strategy interface {
	Group(items []media.MediaItem, threshold float64) []Group
}

// Grouper runs a strategy with a fixed threshold.
type Grouper struct {
	strategy  Strategy
	threshold float64
}

// NewGrouper creates a grouper with the default brute-force strategy and
// the default threshold.
func NewGrouper() *Grouper {
	return &Grouper{
		strategy:  BruteForce{},
		threshold: constants.DefaultDuplicateThreshold,
	}
}

// NewGrouperWith creates a grouper with an explicit strategy and threshold.
func NewGrouperWith(strategy Strategy, threshold float64) *Grouper {
	return &Grouper{strategy: strategy, threshold: threshold}
}

// Group partitions the input into duplicate groups.
func (g *Grouper) Group(items []media.MediaItem) []Group {
	return g.strategy.Group(items, g.threshold)
}

// BruteForce compares every pair of hashed items. O(n²) comparisons, fine
// at library sizes in the tens of thousands but isolated behind Strategy so
// it can be swapped without changing the contract.
type BruteForce struct{}

// Group runs a single pass over items in ascending-id order. Each
// unprocessed hashed item seeds a scan over the remaining unprocessed
// hashed items; matches at or above threshold form a group. Singletons emit
// nothing.
func (BruteForce) Group(items []media.MediaItem, threshold float64) []Group {
	hashed := sortedHashed(items)

	processed := make(map[string]bool, len(hashed))
	var groups []Group

	for i, seed := range hashed {
		if processed[seed.ID] {
			continue
		}

		var members []string
		for _, other := range hashed[i+1:] {
			if processed[other.ID] {
				continue
			}
			if phash.AreNearDuplicates(*seed.PerceptualHash, *other.PerceptualHash, threshold) {
				members = append(members, other.ID)
			}
		}

		processed[seed.ID] = true
		if len(members) == 0 {
			continue
		}
		for _, id := range members {
			processed[id] = true
		}
		groups = append(groups, Group{
			RepresentativeID: seed.ID,
			MemberIDs:        members,
			Similarity:       threshold,
		})
	}
	return groups
}

// PrefixBucket narrows candidate scans by bucketing hashes on their high
// bits. Two hashes within maxDist bits overall differ by at most maxDist
// bits in any prefix, so only buckets whose prefixes are that close need
// scanning. Produces the same partition as BruteForce.
type PrefixBucket struct {
	// PrefixBits is the number of high bits used as the bucket key.
	// Zero means the default of 16.
	PrefixBits int
}

// Group partitions items using prefix buckets to prune candidates.
func (p PrefixBucket) Group(items []media.MediaItem, threshold float64) []Group {
	bits := p.PrefixBits
	if bits <= 0 {
		bits = 16
	}
	maxDist := int((1 - threshold) * float64(constants.HashBits))

	hashed := sortedHashed(items)

	prefix := func(h phash.Hash) uint64 {
		return uint64(h) >> (constants.HashBits - bits)
	}

	buckets := make(map[uint64][]media.MediaItem)
	for _, item := range hashed {
		key := prefix(*item.PerceptualHash)
		buckets[key] = append(buckets[key], item)
	}

	processed := make(map[string]bool, len(hashed))
	var groups []Group

	for _, seed := range hashed {
		if processed[seed.ID] {
			continue
		}
		seedPrefix := prefix(*seed.PerceptualHash)

		// Collect candidates from buckets close enough in prefix space,
		// then restore global id order for deterministic results.
		var candidates []media.MediaItem
		for key, bucket := range buckets {
			if hammingU64(key, seedPrefix) > maxDist {
				continue
			}
			for _, item := range bucket {
				if item.ID != seed.ID && !processed[item.ID] && item.ID > seed.ID {
					candidates = append(candidates, item)
				}
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

		var members []string
		for _, other := range candidates {
			if phash.AreNearDuplicates(*seed.PerceptualHash, *other.PerceptualHash, threshold) {
				members = append(members, other.ID)
			}
		}

		processed[seed.ID] = true
		if len(members) == 0 {
			continue
		}
		for _, id := range members {
			processed[id] = true
		}
		groups = append(groups, Group{
			RepresentativeID: seed.ID,
			MemberIDs:        members,
			Similarity:       threshold,
		})
	}
	return groups
}

// sortedHashed filters out items without a hash and sorts the rest by id
// ascending so iteration order is reproducible.
func sortedHashed(items []media.MediaItem) []media.MediaItem {
	hashed := make([]media.MediaItem, 0, len(items))
	for _, item := range items {
		if item.HasHash() {
			hashed = append(hashed, item)
		}
	}
	sort.Slice(hashed, func(i, j int) bool { return hashed[i].ID < hashed[j].ID })
	return hashed
}

func hammingU64(a, b uint64) int {
	return phash.HammingDistance(phash.Hash(a), phash.Hash(b))
}
