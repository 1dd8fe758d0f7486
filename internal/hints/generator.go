// Package hints produces prioritized candidate nonce values for the mining
// loop. The heuristic is a search-order optimization inherited from earlier
// tooling ("Z3RO2Z"): its numeric biases carry no verified statistical
// advantage, and the sequential sweep remains the correctness fallback.
package hints

import (
	"encoding/binary"
	"encoding/hex"
)

const (
	// hintStep is the arithmetic progression step, close to 2^32/9.
	hintStep = 477218588

	// hintSeed anchors the progression so the residue filters below are
	// reachable (the step alone only visits even values).
	hintSeed = 19

	// hintMultiplier scales the prevhash- and time-derived offsets.
	hintMultiplier = 2654435761

	// hintFold is XOR-folded against the first 8 bytes of the previous
	// block hash.
	hintFold = 0x5a33524f325a9e37

	// hintProbes bounds the progression scan.
	hintProbes = 2048

	// neighborSpread is how many step-spaced neighbors are emitted around
	// each derived offset.
	neighborSpread = 8
)

// Candidates returns a deterministic, de-duplicated, ordered list of 32-bit
// nonce values to try before the exhaustive sweep. Identical (prevHash, ntime)
// inputs always yield the identical list.
func Candidates(prevHash string, ntime uint32) []uint32 {
	seen := make(map[uint32]struct{})
	out := make([]uint32, 0, 64)

	add := func(v uint32) {
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	// Fixed arithmetic progression, filtered to multiples of 9 with
	// residue 19 mod 22.
	for i := 0; i < hintProbes; i++ {
		v := uint32(hintSeed + uint64(i)*hintStep)
		if v%9 == 0 && v%22 == 19 {
			add(v)
		}
	}

	// Offset derived from the previous block hash: XOR-fold the first
	// 8 bytes against the constant, collapse to 32 bits, scale.
	prevBase := foldPrevHash(prevHash) * hintMultiplier
	for k := uint32(0); k < uint32(neighborSpread); k++ {
		add(prevBase + k*hintStep)
	}

	// Offset derived from the job timestamp, scaled by the same constant.
	timeBase := ntime * hintMultiplier
	for k := uint32(0); k < uint32(neighborSpread); k++ {
		add(timeBase + k*hintStep)
	}

	return out
}

// foldPrevHash collapses the first 8 bytes of the previous block hash into a
// 32-bit seed. A malformed or short hash folds to zero, which keeps the
// generator total rather than erroring on bad pool data.
func foldPrevHash(prevHash string) uint32 {
	raw, err := hex.DecodeString(prevHash)
	if err != nil || len(raw) < 8 {
		return 0
	}

	folded := binary.BigEndian.Uint64(raw[:8]) ^ hintFold
	return uint32(folded>>32) ^ uint32(folded)
}
