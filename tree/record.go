// Package tree implements the Spanning-Tree Controller (STC) from spec
// §4.B: it defines the per-variant public record broadcast over gossip,
// runs the periodic parent-election reconciliation, and drives the leaf
// sleep policy and the unicast layer's current parent.
package tree

import (
	"encoding/binary"

	"github.com/carlisia/mlst/internal/config"
	"github.com/carlisia/mlst/link"
)

// Sentinels from spec §3.
const (
	// DistUndefined marks a node with no route to the root.
	DistUndefined uint8 = 0xFF
	// ParentUndefined marks "no parent" / undefined state.
	ParentUndefined link.NodeID = 0
	// ParentIsRoot is the parent_id a root publishes for itself.
	ParentIsRoot link.NodeID = 0xFFFF
	// ChildrenRootSentinel is the children_count a root publishes.
	ChildrenRootSentinel uint8 = 0xFF
)

// EnergyClass is a node's own coarse remaining-energy classification,
// published in the EA record variants (spec §3).
type EnergyClass uint8

// Energy classes from spec §3; zero means "not yet set".
const (
	EnergyUndefined EnergyClass = 0
	EnergyHigh      EnergyClass = 1
	EnergyMid       EnergyClass = 2
	EnergyLow       EnergyClass = 3
)

// Record is the STC's public broadcast payload (spec §3). Not every field
// is meaningful in every variant: DHigh/DMid/DLow are EA2-only, EnergyState
// is absent in the base variant.
type Record struct {
	DistanceToRoot uint8
	ParentID       link.NodeID
	ChildrenCount  uint8
	EnergyState    EnergyClass
	DHigh          uint8
	DMid           uint8
	DLow           uint8
}

// rootRecord is the fixed record a root unconditionally publishes (§4.B).
func rootRecord(variant config.EnergyVariant, energy EnergyClass) Record {
	r := Record{
		DistanceToRoot: 0,
		ParentID:       ParentIsRoot,
		ChildrenCount:  ChildrenRootSentinel,
		EnergyState:    energy,
	}
	if variant == config.VariantEA2 {
		r.DHigh, r.DMid, r.DLow = 0, 0, 0
	}
	return r
}

// undefinedRecord is what an undefined node publishes: no route, but its
// current best guess at children_count is retained (§4.B: "publish
// undefined... children kept").
func undefinedRecord(children uint8) Record {
	return Record{
		DistanceToRoot: DistUndefined,
		ParentID:       ParentUndefined,
		ChildrenCount:  children,
		DHigh:          DistUndefined,
		DMid:           DistUndefined,
		DLow:           DistUndefined,
	}
}

// encode serializes a record per §6's wire layout for variant.
func encode(variant config.EnergyVariant, r Record) []byte {
	switch variant {
	case config.VariantEA2:
		buf := make([]byte, 8)
		buf[0] = r.DHigh
		buf[1] = r.DMid
		buf[2] = r.DLow
		binary.BigEndian.PutUint16(buf[3:5], uint16(r.ParentID))
		buf[5] = r.ChildrenCount
		buf[6] = byte(r.EnergyState)
		buf[7] = 0 // reserved
		return buf
	case config.VariantEA1, config.VariantEA3:
		buf := make([]byte, 5)
		buf[0] = r.DistanceToRoot
		binary.BigEndian.PutUint16(buf[1:3], uint16(r.ParentID))
		buf[3] = r.ChildrenCount
		buf[4] = byte(r.EnergyState)
		return buf
	default: // config.VariantBase
		buf := make([]byte, 4)
		buf[0] = r.DistanceToRoot
		binary.BigEndian.PutUint16(buf[1:3], uint16(r.ParentID))
		buf[3] = r.ChildrenCount
		return buf
	}
}

// decode parses buf per variant's wire layout; ok is false on a length
// mismatch, which the caller treats as an orphan/malformed reception.
func decode(variant config.EnergyVariant, buf []byte) (Record, bool) {
	switch variant {
	case config.VariantEA2:
		if len(buf) != 8 {
			return Record{}, false
		}
		return Record{
			DHigh:         buf[0],
			DMid:          buf[1],
			DLow:          buf[2],
			ParentID:      link.NodeID(binary.BigEndian.Uint16(buf[3:5])),
			ChildrenCount: buf[5],
			EnergyState:   EnergyClass(buf[6]),
		}, true
	case config.VariantEA1, config.VariantEA3:
		if len(buf) != 5 {
			return Record{}, false
		}
		return Record{
			DistanceToRoot: buf[0],
			ParentID:       link.NodeID(binary.BigEndian.Uint16(buf[1:3])),
			ChildrenCount:  buf[3],
			EnergyState:    EnergyClass(buf[4]),
		}, true
	default:
		if len(buf) != 4 {
			return Record{}, false
		}
		return Record{
			DistanceToRoot: buf[0],
			ParentID:       link.NodeID(binary.BigEndian.Uint16(buf[1:3])),
			ChildrenCount:  buf[3],
		}, true
	}
}

// changed reports whether two records differ in the fields the gossip
// change-predicate cares about: parent_id or children_count, never
// distance alone (spec §4.B, "Change predicate used with NG").
func changed(old, cur Record) bool {
	return old.ParentID != cur.ParentID || old.ChildrenCount != cur.ChildrenCount
}
