package blockchain

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunProducesValidatableProof(t *testing.T) {
	block := &Block{
		Timestamp:    1234,
		Transactions: []*Transaction{CoinbaseTx(testAddress, "label")},
		PrevHash:     "",
		Height:       0,
	}

	pow := NewProof(block)
	nonce, hash := pow.Run()

	assert.True(t, strings.HasPrefix(hex.EncodeToString(hash), targetPrefix))

	block.Nonce = nonce
	block.Hash = hex.EncodeToString(hash)
	assert.True(t, pow.Validate())
}

func TestValidateRejectsTamperedHash(t *testing.T) {
	block := &Block{
		Timestamp:    1,
		Transactions: []*Transaction{CoinbaseTx(testAddress, "")},
	}

	pow := NewProof(block)
	nonce, hash := pow.Run()
	block.Nonce = nonce
	block.Hash = hex.EncodeToString(hash)

	assert.True(t, pow.Validate())

	block.Hash = "0000ffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	assert.False(t, pow.Validate(), "a recorded hash that doesn't match the recomputed digest must fail")
}
