package blockchain

import "github.com/dgraph-io/badger/v4"

// Iterator walks a chain backwards from a starting hash to genesis.
type Iterator struct {
	CurrentHash []byte
	Database    *badger.DB
}

// Iterator returns a cursor starting at the chain's current tip.
func (chain *BlockChain) Iterator() *Iterator {
	return &Iterator{chain.LastHash, chain.Database}
}

// Next returns the block at the cursor and rewinds it to that block's
// predecessor.
func (iter *Iterator) Next() *Block {
	var block *Block
	err := iter.Database.View(func(txn *badger.Txn) error {
		item, err := txn.Get(iter.CurrentHash)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			block = Deserialize(val)
			return nil
		})
	})
	Handle(err)

	iter.CurrentHash = []byte(block.PrevHash)
	return block
}
