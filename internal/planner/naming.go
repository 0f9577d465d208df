package planner

import (
	"fmt"
	"sort"
	"strings"
)

// groupName names a group after its tables when there are few of them,
// after a dominant underscore prefix when one exists, and by position
// otherwise. tables must be sorted.
func (p *Planner) groupName(tables []string, position int) string {
	if len(tables) > 0 && len(tables) <= p.cfg.NamingMaxTables {
		return strings.Join(tables, "_")
	}

	if prefix, share := dominantPrefix(tables); prefix != "" && share > p.cfg.PrefixShareThreshold {
		return prefix + "_group"
	}

	return fmt.Sprintf("Group %d", position)
}

// dominantPrefix returns the most common text before the first underscore
// and the share of names carrying it. Ties go to the alphabetically first
// prefix.
func dominantPrefix(names []string) (string, float64) {
	if len(names) == 0 {
		return "", 0
	}

	counts := make(map[string]int)
	for _, n := range names {
		prefix, _, ok := strings.Cut(n, "_")
		if !ok || prefix == "" {
			continue
		}
		counts[strings.ToLower(prefix)]++
	}
	if len(counts) == 0 {
		return "", 0
	}

	prefixes := make([]string, 0, len(counts))
	for k := range counts {
		prefixes = append(prefixes, k)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if counts[prefixes[i]] != counts[prefixes[j]] {
			return counts[prefixes[i]] > counts[prefixes[j]]
		}
		return prefixes[i] < prefixes[j]
	})

	best := prefixes[0]
	return best, float64(counts[best]) / float64(len(names))
}
