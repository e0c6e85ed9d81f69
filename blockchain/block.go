package blockchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-blockchain/errs"
)

// Block is a single entry in the chain: a timestamp, the transactions it
// confirms, a link to the previous block, and the proof-of-work that
// secures it.
type Block struct {
	Timestamp    int64          // Unix milliseconds
	Transactions []*Transaction // Ordered; includes the miner's coinbase, not necessarily at index 0
	PrevHash     string         // Hex hash of the previous block, empty for genesis
	Hash         string         // Hex SHA-256 of the block's preimage
	Nonce        int32          // Proof-of-work nonce
	Height       int32          // 0 for genesis
}

// HashTransactions returns the Merkle root over this block's transaction
// ids, as raw bytes suitable for inclusion in a hash preimage.
func (b *Block) HashTransactions() []byte {
	var txHashes [][]byte
	for _, tx := range b.Transactions {
		txHashes = append(txHashes, tx.ID)
	}
	tree := NewMerkleTree(txHashes)
	return tree.RootNode.Data
}

// CreateBlock builds and mines a new block on top of prevHash at the given
// height. Mining only mutates Nonce and Hash; everything else is fixed
// before the proof-of-work search starts.
func CreateBlock(transactions []*Transaction, prevHash string, height int32) *Block {
	block := &Block{
		Timestamp:    time.Now().UnixMilli(),
		Transactions: transactions,
		PrevHash:     prevHash,
		Hash:         "",
		Nonce:        0,
		Height:       height,
	}

	pow := NewProof(block)
	nonce, hash := pow.Run()
	block.Nonce = nonce
	block.Hash = hex.EncodeToString(hash)

	return block
}

// Genesis mints the first block of a chain from a coinbase transaction.
func Genesis(coinbase *Transaction) *Block {
	return CreateBlock([]*Transaction{coinbase}, "", 0)
}

// ValidatePoW reports whether the block's stored Hash/Nonce actually
// satisfies the proof-of-work target for its contents.
func (b *Block) ValidatePoW() bool {
	pow := NewProof(b)
	return pow.Validate()
}

// Serialize gob-encodes the block for storage or wire transmission.
func (b *Block) Serialize() []byte {
	var res bytes.Buffer
	encoder := gob.NewEncoder(&res)
	if err := encoder.Encode(b); err != nil {
		Handle(err)
	}
	return res.Bytes()
}

// Deserialize decodes a block previously produced by Serialize. Used only
// for trusted, already-validated bytes read back from the local store; a
// decode failure there means on-disk corruption, not a malicious peer.
func Deserialize(data []byte) *Block {
	var block Block

	decoder := gob.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&block); err != nil {
		Handle(err)
	}
	return &block
}

// DeserializeBlock decodes a block received over the wire from a peer. Unlike
// Deserialize, a malformed payload here is not a local corruption bug, so it
// is reported as an error instead of panicking.
func DeserializeBlock(data []byte) (*Block, error) {
	var block Block

	decoder := gob.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&block); err != nil {
		return nil, fmt.Errorf("decode block: %v: %w", err, errs.FormatError)
	}
	return &block, nil
}
