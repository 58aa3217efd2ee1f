// Package energy tracks a node's remaining battery budget as a function
// of real radio costs — bytes transmitted, retry attempts, and idle
// listening drain — and derives the coarse energy class (high/mid/low)
// the EA record variants broadcast. The atomic-backed token pool at its
// core is adapted from the teacher's internal/resource token-bucket
// manager; the cost model above it is new.
package energy
