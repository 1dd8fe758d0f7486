// Package bitcoin provides the pure Bitcoin protocol operations used by the
// GOSOLO mining engine: coinbase assembly, merkle root calculation, block
// header construction, and proof-of-work target handling.
package bitcoin

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HeaderSize is the exact byte length of a serialized block header.
const HeaderSize = 80

// BuildCoinbase assembles the raw coinbase transaction bytes from the four
// hex fragments exchanged over Stratum: the pool-supplied coinb1/coinb2
// halves and the extraNonce1/extraNonce2 values spliced between them.
//
// Parameters:
//   - coinb1: First half of the serialized coinbase (hex)
//   - extraNonce1: Pool-assigned nonce fragment (hex)
//   - extraNonce2: Miner-assigned nonce fragment (hex)
//   - coinb2: Second half of the serialized coinbase (hex)
//
// Returns:
//   - []byte: The complete raw coinbase transaction
//   - error: Non-nil if any fragment is not valid hex
func BuildCoinbase(coinb1, extraNonce1, extraNonce2, coinb2 string) ([]byte, error) {
	raw, err := hex.DecodeString(coinb1 + extraNonce1 + extraNonce2 + coinb2)
	if err != nil {
		return nil, fmt.Errorf("invalid coinbase fragment: %w", err)
	}
	return raw, nil
}

// BuildMerkleRoot computes the merkle root for a Stratum job: the coinbase
// transaction is double-SHA256 hashed, then folded left-to-right with each
// branch hash in order. With an empty branch list the root is simply the
// double-SHA256 of the coinbase transaction.
//
// Parameters:
//   - coinbaseTx: The raw coinbase transaction bytes
//   - merkleBranch: Ordered branch hashes as delivered by mining.notify (hex)
//
// Returns:
//   - [32]byte: The final merkle root
//   - error: Non-nil if a branch hash is malformed
func BuildMerkleRoot(coinbaseTx []byte, merkleBranch []string) ([32]byte, error) {
	var root [32]byte

	hash := chainhash.DoubleHashB(coinbaseTx)

	for i, branch := range merkleBranch {
		branchBytes, err := hex.DecodeString(branch)
		if err != nil {
			return root, fmt.Errorf("invalid merkle branch at index %d: %w", i, err)
		}
		if len(branchBytes) != 32 {
			return root, fmt.Errorf("merkle branch at index %d is %d bytes, want 32", i, len(branchBytes))
		}

		concat := make([]byte, 0, 64)
		concat = append(concat, hash...)
		concat = append(concat, branchBytes...)
		hash = chainhash.DoubleHashB(concat)
	}

	copy(root[:], hash)
	return root, nil
}

// BuildHeader packs an 80-byte block header in the fixed field order required
// by the block-header format: 4-byte version, 32-byte previous hash, 32-byte
// merkle root, 4-byte time, 4-byte bits, 4-byte nonce. All integer fields are
// little-endian; hash fields are copied through as decoded.
//
// Parameters:
//   - version: Block version as delivered by mining.notify (hex)
//   - prevHash: Previous block hash (hex, 32 bytes)
//   - merkleRoot: Merkle root from BuildMerkleRoot
//   - ntime: Block time as delivered by mining.notify (hex)
//   - nbits: Compact difficulty bits as delivered by mining.notify (hex)
//   - nonce: The nonce under evaluation
//
// Returns:
//   - [80]byte: The serialized header
//   - error: Non-nil if any hex field is malformed
func BuildHeader(version, prevHash string, merkleRoot [32]byte, ntime, nbits string, nonce uint32) ([HeaderSize]byte, error) {
	var header [HeaderSize]byte

	versionInt, err := ParseHexUint32(version)
	if err != nil {
		return header, fmt.Errorf("invalid version: %w", err)
	}

	prevBytes, err := hex.DecodeString(prevHash)
	if err != nil {
		return header, fmt.Errorf("invalid previous hash: %w", err)
	}
	if len(prevBytes) != 32 {
		return header, fmt.Errorf("previous hash is %d bytes, want 32", len(prevBytes))
	}

	ntimeInt, err := ParseHexUint32(ntime)
	if err != nil {
		return header, fmt.Errorf("invalid ntime: %w", err)
	}

	nbitsInt, err := ParseHexUint32(nbits)
	if err != nil {
		return header, fmt.Errorf("invalid nbits: %w", err)
	}

	binary.LittleEndian.PutUint32(header[0:4], versionInt)
	copy(header[4:36], prevBytes)
	copy(header[36:68], merkleRoot[:])
	binary.LittleEndian.PutUint32(header[68:72], ntimeInt)
	binary.LittleEndian.PutUint32(header[72:76], nbitsInt)
	binary.LittleEndian.PutUint32(header[76:80], nonce)

	return header, nil
}

// SetNonce overwrites the nonce field of an already-built header template.
// The mining loop uses this to avoid rebuilding the other 76 bytes per nonce.
func SetNonce(header *[HeaderSize]byte, nonce uint32) {
	binary.LittleEndian.PutUint32(header[76:80], nonce)
}

// HeaderHash computes the double-SHA256 hash of a serialized header and
// returns it most-significant-byte first, the order used for target
// comparison and display.
func HeaderHash(header [HeaderSize]byte) [32]byte {
	var out [32]byte
	digest := chainhash.DoubleHashB(header[:])
	for i := 0; i < 32; i++ {
		out[i] = digest[31-i]
	}
	return out
}

// TargetFromBits decodes the compact 32-bit difficulty representation
// (1-byte exponent, 3-byte coefficient) into a 32-byte big-endian target,
// placing the coefficient at the position implied by the exponent.
//
// Exponents outside the valid shift range yield an all-zero target, which is
// never satisfiable, rather than an error.
func TargetFromBits(nbits uint32) [32]byte {
	var target [32]byte

	exponent := int(nbits >> 24)
	coefficient := nbits & 0x00ffffff

	// The coefficient occupies 3 bytes ending 32-(exponent-3) from the left;
	// exponents below 3 or above 32 would shift it out of the buffer.
	if exponent < 3 || exponent > 32 {
		return target
	}

	pos := 32 - exponent
	target[pos] = byte(coefficient >> 16)
	target[pos+1] = byte(coefficient >> 8)
	target[pos+2] = byte(coefficient)

	return target
}

// HashMeetsTarget determines if a header hash satisfies the difficulty
// target. Both values are most-significant-byte first; the hash qualifies
// when it is less than or equal to the target.
func HashMeetsTarget(hash, target [32]byte) bool {
	for i := 0; i < 32; i++ {
		if hash[i] < target[i] {
			return true
		}
		if hash[i] > target[i] {
			return false
		}
	}
	return true
}

// LeadingZeroBits counts the leading zero bits of a most-significant-byte
// first hash. Used only for best-share statistics.
func LeadingZeroBits(hash [32]byte) int {
	total := 0
	for _, b := range hash {
		if b == 0 {
			total += 8
			continue
		}
		total += bits.LeadingZeros8(b)
		break
	}
	return total
}

// ParseHexUint32 parses an 8-character big-endian hex field (version, ntime,
// nbits as delivered by mining.notify) into a uint32.
func ParseHexUint32(hexStr string) (uint32, error) {
	if len(hexStr) != 8 {
		return 0, fmt.Errorf("invalid hex field length: expected 8 characters, got %d", len(hexStr))
	}

	val, err := strconv.ParseUint(hexStr, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse hex field: %w", err)
	}

	return uint32(val), nil
}
