package report

import "sort"

// Rank orders authors by commit count descending, ties broken by net lines
// descending. Full ties keep identity order so the output is deterministic.
func Rank(authors map[string]AuthorStats) []AuthorStats {
	ranked := make([]AuthorStats, 0, len(authors))
	for _, stats := range authors {
		ranked = append(ranked, stats)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CommitCount != ranked[j].CommitCount {
			return ranked[i].CommitCount > ranked[j].CommitCount
		}
		if ranked[i].NetLines() != ranked[j].NetLines() {
			return ranked[i].NetLines() > ranked[j].NetLines()
		}
		return ranked[i].Identity < ranked[j].Identity
	})
	return ranked
}

// PartitionActivity splits authors into active (at least one commit) and
// inactive (zero commits, including roster members never seen in any
// per-repository result). Both partitions are ranked.
func PartitionActivity(authors map[string]AuthorStats) (active, inactive []AuthorStats) {
	ranked := Rank(authors)
	for _, stats := range ranked {
		if stats.CommitCount > 0 {
			active = append(active, stats)
			continue
		}
		inactive = append(inactive, stats)
	}
	return active, inactive
}

// TopBottom slices a ranked sequence into its head and tail. bottomN counts
// from the end of the ranking; the slices never overlap.
func TopBottom(ranked []AuthorStats, topN, bottomN int) (top, bottom []AuthorStats) {
	if topN < 0 {
		topN = 0
	}
	if bottomN < 0 {
		bottomN = 0
	}
	if topN > len(ranked) {
		topN = len(ranked)
	}
	if bottomN > len(ranked)-topN {
		bottomN = len(ranked) - topN
	}
	top = append(top, ranked[:topN]...)
	bottom = append(bottom, ranked[len(ranked)-bottomN:]...)
	return top, bottom
}
