package blockchain

import (
	"bytes"
	"encoding/hex"

	"github.com/dgraph-io/badger/v4"
)

// UTXOSet is a materialised, query-optimised projection of the chain: for
// every txid, the subset of its outputs not yet referenced by a confirmed
// input. It lives in its own badger namespace so wallet/spend-selection
// queries never need a full chain scan.
var (
	utxoPrefix = []byte("utxo-")
)

type UTXOSet struct {
	Blockchain *BlockChain
}

// FindSpendableOutputs accumulates outputs locked to pubkeyHash until their
// total reaches amount, returning that total and the selected (txid →
// output indices) needed to build a transaction's inputs.
func (u UTXOSet) FindSpendableOutputs(pubkeyHash []byte, amount int) (int, map[string][]int) {
	unspentOuts := make(map[string][]int)
	accumulated := 0

	db := u.Blockchain.Database

	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(utxoPrefix); it.ValidForPrefix(utxoPrefix); it.Next() {
			item := it.Item()
			k := bytes.TrimPrefix(item.Key(), utxoPrefix)
			txID := hex.EncodeToString(k)

			var outs TxOutputs
			if err := item.Value(func(val []byte) error {
				outs = DeserializeOutputs(val)
				return nil
			}); err != nil {
				return err
			}

			for outIdx, out := range outs.Outputs {
				if accumulated >= amount {
					break
				}
				if out.IsLockedWithKey(pubkeyHash) {
					accumulated += out.Value
					unspentOuts[txID] = append(unspentOuts[txID], outIdx)
				}
			}
		}
		return nil
	})
	Handle(err)

	return accumulated, unspentOuts
}

// FindUnspentTransactions returns every unspent output locked to
// pubkeyHash, used for balance queries.
func (u UTXOSet) FindUnspentTransactions(pubkeyHash []byte) []TxOutput {
	var UTXOs []TxOutput

	db := u.Blockchain.Database
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(utxoPrefix); it.ValidForPrefix(utxoPrefix); it.Next() {
			item := it.Item()

			var outs TxOutputs
			if err := item.Value(func(val []byte) error {
				outs = DeserializeOutputs(val)
				return nil
			}); err != nil {
				return err
			}

			for _, out := range outs.Outputs {
				if out.IsLockedWithKey(pubkeyHash) {
					UTXOs = append(UTXOs, out)
				}
			}
		}
		return nil
	})
	Handle(err)

	return UTXOs
}

// CountTransactions returns the number of txids present in the utxos
// namespace.
func (u UTXOSet) CountTransactions() int {
	db := u.Blockchain.Database
	counter := 0

	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(utxoPrefix); it.ValidForPrefix(utxoPrefix); it.Next() {
			counter++
		}
		return nil
	})
	Handle(err)

	return counter
}

// Reindex wipes and rebuilds the utxos namespace from a full chain scan.
// The wipe uses Badger's DropPrefix, which drops the whole key range in one
// crash-safe operation instead of a scan-then-delete loop that could leave
// the namespace half-wiped if the process dies partway through.
func (u UTXOSet) Reindex() {
	db := u.Blockchain.Database

	if err := db.DropPrefix(utxoPrefix); err != nil {
		Handle(err)
	}
	rawUTXO := u.Blockchain.FindUTXO()

	err := db.Update(func(txn *badger.Txn) error {
		for txID, outs := range rawUTXO {
			key, err := hex.DecodeString(txID)
			if err != nil {
				return err
			}
			key = append(append([]byte{}, utxoPrefix...), key...)

			if err := txn.Set(key, outs.Serialize()); err != nil {
				return err
			}
		}
		return nil
	})
	Handle(err)
}

// Update incrementally applies a newly-appended block to the UTXO set:
// inputs prune the entries they spend (by original output index, never
// renumbered), outputs add a fresh entry for the new transaction.
func (u *UTXOSet) Update(block *Block) {
	db := u.Blockchain.Database

	err := db.Update(func(txn *badger.Txn) error {
		for _, tx := range block.Transactions {
			if !tx.IsCoinbase() {
				for _, in := range tx.Inputs {
					inKey := append(append([]byte{}, utxoPrefix...), in.ID...)

					item, err := txn.Get(inKey)
					if err != nil {
						return err
					}

					var outs TxOutputs
					if err := item.Value(func(val []byte) error {
						outs = DeserializeOutputs(val)
						return nil
					}); err != nil {
						return err
					}

					delete(outs.Outputs, in.Out)

					if len(outs.Outputs) == 0 {
						if err := txn.Delete(inKey); err != nil {
							return err
						}
					} else if err := txn.Set(inKey, outs.Serialize()); err != nil {
						return err
					}
				}
			}

			newOutputs := TxOutputs{Outputs: make(map[int]TxOutput, len(tx.Outputs))}
			for idx, out := range tx.Outputs {
				newOutputs.Outputs[idx] = out
			}

			txKey := append(append([]byte{}, utxoPrefix...), tx.ID...)
			if err := txn.Set(txKey, newOutputs.Serialize()); err != nil {
				return err
			}
		}
		return nil
	})
	Handle(err)
}

