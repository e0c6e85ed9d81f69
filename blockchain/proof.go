package blockchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

/**
 * PROOF OF WORK
 *
 * Miners search for a nonce such that SHA-256 of the block preimage has
 * TargetHexs leading '0' hex characters. Finding a valid nonce is hard
 * (brute force); checking one is a single hash computation.
 */

// TargetHexs is the fixed difficulty: the number of leading hex-zero
// characters a valid block hash must have.
const TargetHexs = 4

type ProofOfWork struct {
	Block *Block
}

// NewProof wraps a block for mining or validation.
func NewProof(b *Block) *ProofOfWork {
	return &ProofOfWork{b}
}

// InitData builds the canonical preimage for a candidate nonce:
// prev_hash || merkle_root || timestamp || target || nonce, each integer
// field encoded as 8 big-endian bytes via ToHex.
func (pow *ProofOfWork) InitData(nonce int32) []byte {
	return bytes.Join(
		[][]byte{
			[]byte(pow.Block.PrevHash),
			pow.Block.HashTransactions(),
			ToHex(pow.Block.Timestamp),
			ToHex(int64(TargetHexs)),
			ToHex(int64(nonce)),
		},
		[]byte{},
	)
}

var targetPrefix = strings.Repeat("0", TargetHexs)

// Run searches for a nonce whose SHA-256 digest of InitData(nonce) has
// TargetHexs leading hex-zero characters, and returns that nonce together
// with the full digest.
func (pow *ProofOfWork) Run() (int32, []byte) {
	var nonce int32 = 0

	for {
		data := pow.InitData(nonce)
		hash := sha256.Sum256(data)

		if hasTargetPrefix(hash[:]) {
			return nonce, hash[:]
		}
		nonce++
	}
}

// Validate recomputes the hash for the block's stored nonce and checks it
// against both the target prefix and the block's recorded Hash field.
func (pow *ProofOfWork) Validate() bool {
	data := pow.InitData(pow.Block.Nonce)
	hash := sha256.Sum256(data)

	if !hasTargetPrefix(hash[:]) {
		return false
	}
	return hex.EncodeToString(hash[:]) == pow.Block.Hash
}

func hasTargetPrefix(hash []byte) bool {
	return strings.HasPrefix(hex.EncodeToString(hash), targetPrefix)
}

// ToHex encodes an int64 as its 8-byte big-endian representation. The name
// is inherited from the original tutorial codebase; it returns binary
// bytes, not a hex string.
func ToHex(num int64) []byte {
	buffer := new(bytes.Buffer)
	if err := binary.Write(buffer, binary.BigEndian, num); err != nil {
		return nil
	}
	return buffer.Bytes()
}
