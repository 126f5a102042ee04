package evaluator

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

// parallelTopThreshold is the input size above which TopN ranks partitions concurrently.
const parallelTopThreshold = 1 << 15

// Ranked is a scored record tagged with its position in the full input.
type Ranked struct {
	Index int
	domain.ScoredTransaction
}

// TopN returns the n records with the highest risk_score. Ties keep their
// original input order. n <= 0 selects domain.DefaultTopN.
func TopN(scored []domain.ScoredTransaction, n int) []domain.ScoredTransaction {
	if n <= 0 {
		n = domain.DefaultTopN
	}
	if len(scored) < parallelTopThreshold {
		return unwrap(PartitionTop(scored, 0, n))
	}

	const parts = 8
	size := (len(scored) + parts - 1) / parts
	partials := make([][]Ranked, 0, parts)
	for lo := 0; lo < len(scored); lo += size {
		partials = append(partials, nil)
	}

	var g errgroup.Group
	for p := range partials {
		lo := p * size
		hi := min(lo+size, len(scored))
		g.Go(func() error {
			partials[p] = PartitionTop(scored[lo:hi], lo, n)
			return nil
		})
	}
	_ = g.Wait()

	return MergeTop(partials, n)
}

// PartitionTop ranks one partition. offset is the index of part[0] in the
// full input and is carried in each result so partitions can be merged.
func PartitionTop(part []domain.ScoredTransaction, offset, n int) []Ranked {
	ranked := make([]Ranked, len(part))
	for i, st := range part {
		ranked[i] = Ranked{Index: offset + i, ScoredTransaction: st}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RiskScore > ranked[j].RiskScore
	})
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// MergeTop combines partition-local rankings into the global top n, ordered
// by score descending then original index ascending.
func MergeTop(parts [][]Ranked, n int) []domain.ScoredTransaction {
	var all []Ranked
	for _, p := range parts {
		all = append(all, p...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].RiskScore != all[j].RiskScore {
			return all[i].RiskScore > all[j].RiskScore
		}
		return all[i].Index < all[j].Index
	})
	if n < len(all) {
		all = all[:n]
	}
	return unwrap(all)
}

func unwrap(ranked []Ranked) []domain.ScoredTransaction {
	out := make([]domain.ScoredTransaction, len(ranked))
	for i, r := range ranked {
		out[i] = r.ScoredTransaction
	}
	return out
}
