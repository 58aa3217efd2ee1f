package tree

import (
	"github.com/carlisia/mlst/internal/config"
	"github.com/carlisia/mlst/link"
)

// neighborView is one neighbor's decoded record as seen at election time.
type neighborView struct {
	ID     link.NodeID
	Record Record
}

// classify buckets a neighbor into "potential child", "actual child", or
// "parent candidate" per the common first step of every variant's scan
// (spec §4.B). isChild is true for the first two cases, in which case the
// neighbor never participates as a parent candidate.
func classify(own link.NodeID, n neighborView) (isChild bool) {
	return n.Record.ParentID == ParentUndefined || n.Record.ParentID == own
}

// scoredCandidate is a parent candidate reduced to the fields the
// single-distance variants (base, EA1, EA3) compare on.
type scoredCandidate struct {
	ID       link.NodeID
	Dist     uint8
	Energy   EnergyClass
	Children uint8
}

// effectiveDistance computes the distance a neighbor's record contributes
// as a prospective parent. EA3 weights the hop by the neighbor's own
// energy class instead of a flat +1 (spec §4.B).
func effectiveDistance(variant config.EnergyVariant, n Record) uint8 {
	if variant == config.VariantEA3 {
		return n.DistanceToRoot + uint8(n.EnergyState)
	}
	return n.DistanceToRoot + 1
}

// electSingleDistance runs the base/EA1/EA3 scan: one pass to classify
// neighbors and collect candidates, then a tie-aware pick of the best.
// potentialParents counts how many distinct candidates shared the winning
// (distance[, energy], children) tuple before id broke the tie (spec §4.B, "On
// further tie, lower neighbor id wins, and potential_parents is
// incremented").
func electSingleDistance(own link.NodeID, variant config.EnergyVariant, neighbors []neighborView) (best *scoredCandidate, children uint8, potentialParents int) {
	var candidates []scoredCandidate

	for _, n := range neighbors {
		if classify(own, n) {
			children++
			continue
		}
		if n.Record.DistanceToRoot == DistUndefined {
			continue
		}
		candidates = append(candidates, scoredCandidate{
			ID:       n.ID,
			Dist:     effectiveDistance(variant, n.Record),
			Energy:   n.Record.EnergyState,
			Children: n.Record.ChildrenCount,
		})
	}

	if len(candidates) == 0 {
		return nil, children, 0
	}

	bestDist := candidates[0].Dist
	bestEnergy := candidates[0].Energy
	useEnergy := variant == config.VariantEA1
	for _, c := range candidates[1:] {
		if c.Dist < bestDist || (c.Dist == bestDist && useEnergy && c.Energy < bestEnergy) {
			bestDist = c.Dist
			bestEnergy = c.Energy
		}
	}

	bestChildren := uint8(0)
	first := true
	for _, c := range candidates {
		if c.Dist != bestDist {
			continue
		}
		if useEnergy && c.Energy != bestEnergy {
			continue
		}
		if first || c.Children > bestChildren {
			bestChildren = c.Children
			first = false
		}
	}

	var tied []scoredCandidate
	for _, c := range candidates {
		if c.Dist != bestDist || c.Children != bestChildren {
			continue
		}
		if useEnergy && c.Energy != bestEnergy {
			continue
		}
		tied = append(tied, c)
	}

	winner := tied[0]
	for _, c := range tied[1:] {
		if c.ID < winner.ID {
			winner = c
		}
	}

	return &winner, children, len(tied)
}

// ea2Class is one of the three class-scoped candidate trees in EA2.
type ea2Class int

const (
	classHigh ea2Class = iota
	classMid
	classLow
)

// eligible reports whether a neighbor of the given energy class may serve
// as a parent within class c (spec §4.B: "energy_state = 1 may parent in
// high, ≤ 2 in mid, any in low").
func eligible(c ea2Class, energy EnergyClass) bool {
	switch c {
	case classHigh:
		return energy == EnergyHigh
	case classMid:
		return energy == EnergyHigh || energy == EnergyMid
	default:
		return true
	}
}

func classDistance(c ea2Class, r Record) uint8 {
	switch c {
	case classHigh:
		return r.DHigh
	case classMid:
		return r.DMid
	default:
		return r.DLow
	}
}

// ea2Result is the outcome of scanning one class during electEA2.
type ea2Result struct {
	found    bool
	dist     uint8 // this node's resulting D_c if found
	parentID link.NodeID
}

// electEA2 runs the three class-scoped scans described in spec §4.B and
// picks the overall parent preferring the highest nonempty class.
func electEA2(own link.NodeID, neighbors []neighborView) (parent link.NodeID, dHigh, dMid, dLow uint8, children uint8) {
	dHigh, dMid, dLow = DistUndefined, DistUndefined, DistUndefined

	for _, n := range neighbors {
		if classify(own, n) {
			children++
		}
	}

	results := make(map[ea2Class]ea2Result)
	for _, c := range []ea2Class{classHigh, classMid, classLow} {
		results[c] = electEA2Class(own, c, neighbors)
	}

	if r := results[classHigh]; r.found {
		dHigh = r.dist
	}
	if r := results[classMid]; r.found {
		dMid = r.dist
	}
	if r := results[classLow]; r.found {
		dLow = r.dist
	}

	for _, c := range []ea2Class{classHigh, classMid, classLow} {
		if r := results[c]; r.found {
			return r.parentID, dHigh, dMid, dLow, children
		}
	}
	return ParentUndefined, dHigh, dMid, dLow, children
}

func electEA2Class(own link.NodeID, c ea2Class, neighbors []neighborView) ea2Result {
	type cand struct {
		ID       link.NodeID
		Dist     uint8
		Children uint8
	}
	var candidates []cand

	for _, n := range neighbors {
		if classify(own, n) {
			continue
		}
		d := classDistance(c, n.Record)
		if d == DistUndefined {
			continue
		}
		if !eligible(c, n.Record.EnergyState) {
			continue
		}
		candidates = append(candidates, cand{ID: n.ID, Dist: d + 1, Children: n.Record.ChildrenCount})
	}

	if len(candidates) == 0 {
		return ea2Result{}
	}

	best := candidates[0]
	for _, cd := range candidates[1:] {
		switch {
		case cd.Dist < best.Dist:
			best = cd
		case cd.Dist == best.Dist && cd.Children > best.Children:
			best = cd
		case cd.Dist == best.Dist && cd.Children == best.Children && cd.ID < best.ID:
			best = cd
		}
	}

	return ea2Result{found: true, dist: best.Dist, parentID: best.ID}
}
