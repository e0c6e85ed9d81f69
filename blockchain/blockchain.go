package blockchain

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/golang-blockchain/errs"
)

const (
	dbPath      = "./tmp/blocks_%s"
	genesisData = "First Transaction from Genesis"
)

// BlockChain is the append-only, badger-backed ledger: a blocks namespace
// keyed by block hash, plus an in-memory mirror of the tip hash.
type BlockChain struct {
	LastHash []byte
	Database *badger.DB
}

// DBExists reports whether a badger database already lives at path.
func DBExists(path string) bool {
	if _, err := os.Stat(path + "/MANIFEST"); os.IsNotExist(err) {
		return false
	}
	return true
}

// InitBlockChain creates a fresh chain at nodeID's data path, mining a
// genesis block whose coinbase pays address. It refuses to run if a chain
// already exists there.
func InitBlockChain(address, nodeID string) *BlockChain {
	path := fmt.Sprintf(dbPath, nodeID)
	if DBExists(path) {
		zap.L().Warn("blockchain already exists", zap.String("path", path))
		os.Exit(1)
	}

	var lastHash []byte

	opts := badger.DefaultOptions(path).WithLogger(nil)
	opts.Dir = path
	opts.ValueDir = path

	db, err := openDB(path, opts)
	Handle(err)

	err = db.Update(func(txn *badger.Txn) error {
		cbtx := CoinbaseTx(address, genesisData)
		genesis := Genesis(cbtx)
		zap.L().Info("genesis block created", zap.String("hash", genesis.Hash))

		if err := txn.Set([]byte(genesis.Hash), genesis.Serialize()); err != nil {
			return err
		}
		if err := txn.Set([]byte("LAST"), []byte(genesis.Hash)); err != nil {
			return err
		}
		lastHash = []byte(genesis.Hash)
		return nil
	})
	Handle(err)

	return &BlockChain{lastHash, db}
}

// ContinueBlockChain opens an existing chain at nodeID's data path.
func ContinueBlockChain(nodeID string) *BlockChain {
	path := fmt.Sprintf(dbPath, nodeID)
	if !DBExists(path) {
		zap.L().Warn("no existing blockchain found", zap.String("path", path))
		os.Exit(1)
	}

	var lastHash []byte
	opts := badger.DefaultOptions(path).WithLogger(nil)
	opts.Dir = path
	opts.ValueDir = path

	db, err := openDB(path, opts)
	Handle(err)

	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("LAST"))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			lastHash = append([]byte{}, val...)
			return nil
		})
	})
	Handle(err)

	return &BlockChain{lastHash, db}
}

// GetBestHeight returns the height of the current tip.
func (chain *BlockChain) GetBestHeight() int32 {
	var lastBlock Block

	err := chain.Database.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("LAST"))
		if err != nil {
			return err
		}
		lastHash, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get(lastHash)
		if err != nil {
			return err
		}
		lastBlockData, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		lastBlock = *Deserialize(lastBlockData)
		return nil
	})
	Handle(err)

	return lastBlock.Height
}

// GetBlock fetches a block by its hex hash.
func (chain *BlockChain) GetBlock(blockHash []byte) (Block, error) {
	var block Block

	err := chain.Database.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockHash)
		if err != nil {
			return fmt.Errorf("block %x: %w", blockHash, errs.NotFound)
		}
		blockData, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		block = *Deserialize(blockData)
		return nil
	})

	if err != nil {
		return block, err
	}
	return block, nil
}

// GetBlockHashes returns every block hash in the chain, tip-first.
func (chain *BlockChain) GetBlockHashes() [][]byte {
	var blocks [][]byte

	iter := chain.Iterator()
	for {
		block := iter.Next()
		blocks = append(blocks, []byte(block.Hash))
		if block.PrevHash == "" {
			break
		}
	}

	return blocks
}

// MineBlock verifies every supplied transaction against the current chain,
// then mines and persists a new block containing them.
func (chain *BlockChain) MineBlock(transactions []*Transaction) (*Block, error) {
	var lastHash []byte
	var lastHeight int32

	for _, tx := range transactions {
		if !chain.VerifyTransaction(tx) {
			return nil, fmt.Errorf("mine block: tx %x: %w", tx.ID, errs.InvalidTransaction)
		}
	}

	err := chain.Database.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("LAST"))
		if err != nil {
			return err
		}
		lastHash, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get(lastHash)
		if err != nil {
			return err
		}
		lastBlockData, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		lastHeight = Deserialize(lastBlockData).Height
		return nil
	})
	Handle(err)

	newBlock := CreateBlock(transactions, string(lastHash), lastHeight+1)

	err = chain.Database.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(newBlock.Hash), newBlock.Serialize()); err != nil {
			return err
		}
		if err := txn.Set([]byte("LAST"), []byte(newBlock.Hash)); err != nil {
			return err
		}
		chain.LastHash = []byte(newBlock.Hash)
		return nil
	})
	Handle(err)

	return newBlock, nil
}

// AddBlock accepts a block received from a peer. Unlike MineBlock it does
// not mint anything; it must instead validate that the block is genuinely
// earned and consistent before it touches the store:
//   - the block's proof-of-work is valid for its own contents
//   - its PrevHash names a block already on our chain at height-1
//   - every contained transaction verifies against the chain
//
// A block failing any of these is rejected with errs.InvalidBlock and
// never written, rather than being accepted unconditionally.
func (chain *BlockChain) AddBlock(block *Block) error {
	if !block.ValidatePoW() {
		return fmt.Errorf("block %s: proof-of-work invalid: %w", block.Hash, errs.InvalidBlock)
	}

	var alreadyHave bool
	var prevBlock Block
	var prevFound bool

	err := chain.Database.View(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(block.Hash)); err == nil {
			alreadyHave = true
			return nil
		}

		if block.Height != 0 {
			item, err := txn.Get([]byte(block.PrevHash))
			if err != nil {
				return nil
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			prevBlock = *Deserialize(data)
			prevFound = true
		}
		return nil
	})
	Handle(err)

	if alreadyHave {
		return nil
	}

	if block.Height != 0 {
		if !prevFound {
			return fmt.Errorf("block %s: previous block %s not found: %w", block.Hash, block.PrevHash, errs.InvalidBlock)
		}
		if prevBlock.Height != block.Height-1 {
			return fmt.Errorf("block %s: height %d does not follow previous height %d: %w", block.Hash, block.Height, prevBlock.Height, errs.InvalidBlock)
		}
	}

	for _, tx := range block.Transactions {
		if !chain.VerifyTransaction(tx) {
			return fmt.Errorf("block %s: tx %x invalid: %w", block.Hash, tx.ID, errs.InvalidBlock)
		}
	}

	err = chain.Database.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(block.Hash), block.Serialize()); err != nil {
			return err
		}

		item, err := txn.Get([]byte("LAST"))
		if err != nil {
			return err
		}
		lastHash, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get(lastHash)
		if err != nil {
			return err
		}
		lastBlockData, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		lastBlock := Deserialize(lastBlockData)

		if lastBlock.Height < block.Height {
			if err := txn.Set([]byte("LAST"), []byte(block.Hash)); err != nil {
				return err
			}
			chain.LastHash = []byte(block.Hash)
		}
		return nil
	})
	Handle(err)

	return nil
}

// FindUTXO scans the whole chain and returns, for every txid, the subset
// of its outputs not referenced by any later input — keyed by original
// output index so a spend never renumbers its siblings.
func (chain *BlockChain) FindUTXO() map[string]TxOutputs {
	UTXO := make(map[string]TxOutputs)
	spentTXOs := make(map[string]map[int]bool)

	iter := chain.Iterator()
	for {
		block := iter.Next()

		for _, tx := range block.Transactions {
			txID := hex.EncodeToString(tx.ID)

			for outIdx, out := range tx.Outputs {
				if spentTXOs[txID][outIdx] {
					continue
				}

				outs, ok := UTXO[txID]
				if !ok {
					outs = TxOutputs{Outputs: make(map[int]TxOutput)}
				}
				outs.Outputs[outIdx] = out
				UTXO[txID] = outs
			}

			if !tx.IsCoinbase() {
				for _, in := range tx.Inputs {
					inTxID := hex.EncodeToString(in.ID)
					if spentTXOs[inTxID] == nil {
						spentTXOs[inTxID] = make(map[int]bool)
					}
					spentTXOs[inTxID][in.Out] = true
				}
			}
		}

		if block.PrevHash == "" {
			break
		}
	}

	return UTXO
}

// FindTransaction searches the chain for a transaction by id.
func (chain *BlockChain) FindTransaction(ID []byte) (Transaction, error) {
	iter := chain.Iterator()

	for {
		block := iter.Next()

		for _, tx := range block.Transactions {
			if bytes.Equal(tx.ID, ID) {
				return *tx, nil
			}
		}

		if block.PrevHash == "" {
			break
		}
	}

	return Transaction{}, fmt.Errorf("transaction %x: %w", ID, errs.NotFound)
}

// SignTransaction resolves every input's previous transaction and signs tx
// with privateKey.
func (chain *BlockChain) SignTransaction(tx *Transaction, privateKey ed25519.PrivateKey) error {
	prevTXs := make(map[string]Transaction)

	for _, in := range tx.Inputs {
		prevTX, err := chain.FindTransaction(in.ID)
		if err != nil {
			return fmt.Errorf("sign transaction: %w", err)
		}
		prevTXs[hex.EncodeToString(in.ID)] = prevTX
	}

	return tx.Sign(privateKey, prevTXs)
}

// VerifyTransaction resolves every input's previous transaction and
// verifies tx's signatures against them.
func (chain *BlockChain) VerifyTransaction(tx *Transaction) bool {
	if tx.IsCoinbase() {
		return true
	}

	prevTXs := make(map[string]Transaction)
	for _, in := range tx.Inputs {
		prevTX, err := chain.FindTransaction(in.ID)
		if err != nil {
			return false
		}
		prevTXs[hex.EncodeToString(in.ID)] = prevTX
	}

	return tx.Verify(prevTXs)
}

func retry(dir string, originalOpts badger.Options) (*badger.DB, error) {
	lockPath := filepath.Join(dir, "LOCK")
	if err := os.Remove(lockPath); err != nil {
		return nil, fmt.Errorf("remove lock file: %w", err)
	}
	return badger.Open(originalOpts)
}

func openDB(dir string, opts badger.Options) (*badger.DB, error) {
	db, err := badger.Open(opts)
	if err == nil {
		return db, nil
	}

	if strings.Contains(err.Error(), "LOCK") {
		if db, err := retry(dir, opts); err == nil {
			zap.L().Info("database unlocked", zap.String("path", dir))
			return db, nil
		}
		zap.L().Error("could not unlock database", zap.String("path", dir), zap.Error(err))
	}
	return nil, err
}
