package blockchain

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golang-blockchain/errs"
	"github.com/golang-blockchain/wallet"
)

// testAddress is a well-formed Base58 address for coinbase outputs in tests.
var testAddress = string(wallet.MakeWallet().Address())

// newTestChain builds a chain backed by an in-memory badger database,
// seeded with a genesis block paying reward.
func newTestChain(t *testing.T, reward string) *BlockChain {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cbtx := CoinbaseTx(reward, "test genesis")
	genesis := Genesis(cbtx)

	err = db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(genesis.Hash), genesis.Serialize()); err != nil {
			return err
		}
		return txn.Set([]byte("LAST"), []byte(genesis.Hash))
	})
	require.NoError(t, err)

	return &BlockChain{LastHash: []byte(genesis.Hash), Database: db}
}

func TestGenesisHeightAndBalance(t *testing.T) {
	chain := newTestChain(t, testAddress)

	assert.Equal(t, int32(0), chain.GetBestHeight())

	utxoSet := UTXOSet{Blockchain: chain}
	utxoSet.Reindex()

	utxos := utxoSet.FindUnspentTransactions([]byte("miner-addr-hash-not-matching"))
	assert.Empty(t, utxos, "genesis output is locked to a real pubkey hash, not a raw address string")
}

func TestMineBlockAdvancesHeight(t *testing.T) {
	chain := newTestChain(t, testAddress)

	cbTx := CoinbaseTx(testAddress, "")
	block, err := chain.MineBlock([]*Transaction{cbTx})
	require.NoError(t, err)

	assert.Equal(t, int32(1), block.Height)
	assert.Equal(t, int32(1), chain.GetBestHeight())
	assert.True(t, block.ValidatePoW())
}

func TestAddBlockRejectsBadProofOfWork(t *testing.T) {
	chain := newTestChain(t, testAddress)

	cbTx := CoinbaseTx(testAddress, "")
	block := &Block{
		Timestamp:    1,
		Transactions: []*Transaction{cbTx},
		PrevHash:     string(chain.LastHash),
		Hash:         "not-a-real-proof-of-work",
		Nonce:        0,
		Height:       1,
	}

	err := chain.AddBlock(block)
	assert.ErrorIs(t, err, errs.InvalidBlock)
}

func TestAddBlockRejectsWrongHeight(t *testing.T) {
	chain := newTestChain(t, testAddress)

	cbTx := CoinbaseTx(testAddress, "")
	// CreateBlock mines a genuinely valid block, but at the wrong height.
	block := CreateBlock([]*Transaction{cbTx}, string(chain.LastHash), 7)

	err := chain.AddBlock(block)
	require.Error(t, err)
}

func TestAddBlockIsIdempotentOnKnownHash(t *testing.T) {
	chain := newTestChain(t, testAddress)

	cbTx := CoinbaseTx(testAddress, "")
	mined, err := chain.MineBlock([]*Transaction{cbTx})
	require.NoError(t, err)

	// Re-adding a block we already have must succeed as a no-op, not fail.
	err = chain.AddBlock(mined)
	assert.NoError(t, err)
}

func TestUTXOReindexMatchesIncrementalUpdate(t *testing.T) {
	chain := newTestChain(t, testAddress)

	incremental := UTXOSet{Blockchain: chain}
	incremental.Reindex()

	cbTx := CoinbaseTx(testAddress, "")
	block, err := chain.MineBlock([]*Transaction{cbTx})
	require.NoError(t, err)

	incremental.Update(block)
	incrementalCount := incremental.CountTransactions()

	reindexed := UTXOSet{Blockchain: chain}
	reindexed.Reindex()
	reindexedCount := reindexed.CountTransactions()

	assert.Equal(t, reindexedCount, incrementalCount)
}
