package dupes

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/phajek/mediascan/internal/media"
	"github.com/phajek/mediascan/internal/phash"
)

func hashedItem(id string, h phash.Hash) media.MediaItem {
	return media.MediaItem{ID: id, Path: id + ".jpg", PerceptualHash: &h}
}

func TestGroup_FiveItemScenario(t *testing.T) {
	// Items 1+2 near-identical, item 3 unique, items 4+5 near-identical.
	items := []media.MediaItem{
		hashedItem("item1", 0x0000000000000000),
		hashedItem("item2", 0x0000000000000003), // 2 bits from item1
		hashedItem("item3", 0xFFFF0000FFFF0000),
		hashedItem("item4", 0xFFFFFFFFFFFFFFFF),
		hashedItem("item5", 0xFFFFFFFFFFFFFFFE), // 1 bit from item4
	}

	groups := NewGrouper().Group(items)

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(groups), groups)
	}

	if groups[0].RepresentativeID != "item1" || !reflect.DeepEqual(groups[0].MemberIDs, []string{"item2"}) {
		t.Errorf("group 0 = %+v; want item1 + [item2]", groups[0])
	}
	if groups[1].RepresentativeID != "item4" || !reflect.DeepEqual(groups[1].MemberIDs, []string{"item5"}) {
		t.Errorf("group 1 = %+v; want item4 + [item5]", groups[1])
	}

	for _, g := range groups {
		if g.Similarity != 0.90 {
			t.Errorf("group similarity = %f; want the qualifying threshold 0.90", g.Similarity)
		}
		for _, m := range g.MemberIDs {
			if m == "item3" {
				t.Error("unique item3 should appear in no group")
			}
		}
	}
}

func TestGroup_PartitionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var items []media.MediaItem
	for i := range 60 {
		// Clusters of similar hashes plus random noise.
		base := phash.Hash(uint64(i/4) * 0x1111111111111111)
		h := base ^ phash.Hash(uint64(rng.Intn(4)))
		items = append(items, hashedItem(fmt.Sprintf("id%03d", i), h))
	}

	groups := NewGrouper().Group(items)

	seen := make(map[string]int)
	for _, g := range groups {
		seen[g.RepresentativeID]++
		for _, m := range g.MemberIDs {
			seen[m]++
			if m == g.RepresentativeID {
				t.Errorf("item %s grouped with itself", m)
			}
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("item %s appears in %d groups; partition violated", id, n)
		}
	}
	// Union of grouped items and singles must be the input set exactly once.
	for _, item := range items {
		if seen[item.ID] > 1 {
			t.Errorf("item %s counted %d times", item.ID, seen[item.ID])
		}
	}
}

func TestGroup_NoHashIgnored(t *testing.T) {
	items := []media.MediaItem{
		hashedItem("a", 0x0),
		{ID: "b", Path: "b.jpg"}, // no hash
		hashedItem("c", 0x1),
	}

	groups := NewGrouper().Group(items)

	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	for _, m := range append(groups[0].MemberIDs, groups[0].RepresentativeID) {
		if m == "b" {
			t.Error("hashless item must never appear in a group")
		}
	}
}

func TestGroup_SingletonsEmitNothing(t *testing.T) {
	items := []media.MediaItem{
		hashedItem("a", 0x0000000000000000),
		hashedItem("b", 0xFFFFFFFFFFFFFFFF),
	}

	if groups := NewGrouper().Group(items); len(groups) != 0 {
		t.Errorf("expected no groups for dissimilar items, got %+v", groups)
	}
}

func TestGroup_Deterministic(t *testing.T) {
	// Input order must not matter: iteration is by ascending id.
	forward := []media.MediaItem{
		hashedItem("a", 0x0),
		hashedItem("b", 0x1),
		hashedItem("c", 0x3),
	}
	reversed := []media.MediaItem{forward[2], forward[1], forward[0]}

	g1 := NewGrouper().Group(forward)
	g2 := NewGrouper().Group(reversed)

	if !reflect.DeepEqual(g1, g2) {
		t.Errorf("grouping depends on input order:\n%+v\nvs\n%+v", g1, g2)
	}
}

func TestPrefixBucket_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var items []media.MediaItem
	for i := range 200 {
		base := phash.Hash(rng.Uint64())
		items = append(items, hashedItem(fmt.Sprintf("p%04d", i), base))
		// Sprinkle in near-duplicates of some items.
		if i%5 == 0 {
			items = append(items, hashedItem(fmt.Sprintf("p%04d-dup", i), base^phash.Hash(1<<uint(rng.Intn(64)))))
		}
	}

	brute := NewGrouperWith(BruteForce{}, 0.90).Group(items)
	bucketed := NewGrouperWith(PrefixBucket{}, 0.90).Group(items)

	if !reflect.DeepEqual(brute, bucketed) {
		t.Errorf("prefix bucket strategy diverged from brute force:\n%+v\nvs\n%+v", brute, bucketed)
	}
}
