package blockchain

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/golang-blockchain/errs"
	"github.com/golang-blockchain/wallet"
)

// Subsidy is the block reward paid to a coinbase output.
const Subsidy = 10

// TxInput references a previous output being spent. PubKey carries the
// full spender public key so the network can verify the signature;
// Signature is produced over the per-input trimmed-copy hash.
type TxInput struct {
	ID        []byte // Previous transaction ID, empty for coinbase
	Out       int    // Output index in that transaction, -1 for coinbase
	Signature []byte
	PubKey    []byte
}

// UsesKey reports whether this input was signed by the holder of pubKeyHash.
func (in *TxInput) UsesKey(pubKeyHash []byte) bool {
	lockingHash := wallet.PublicKeyHash(in.PubKey)
	return bytes.Equal(lockingHash, pubKeyHash)
}

// TxOutput locks a value to a recipient's public key hash.
type TxOutput struct {
	Value      int
	PubKeyHash []byte
}

// Lock sets PubKeyHash from a Base58 address.
func (out *TxOutput) Lock(address []byte) {
	pubKeyHash := wallet.Base58Decode(address)
	pubKeyHash = pubKeyHash[1 : len(pubKeyHash)-4] // strip version byte and checksum
	out.PubKeyHash = pubKeyHash
}

// IsLockedWithKey reports whether this output is spendable by pubKeyHash.
func (out *TxOutput) IsLockedWithKey(pubKeyHash []byte) bool {
	return bytes.Equal(out.PubKeyHash, pubKeyHash)
}

// NewTXOutput builds an output of value locked to address.
func NewTXOutput(value int, address string) *TxOutput {
	txo := &TxOutput{value, nil}
	txo.Lock([]byte(address))
	return txo
}

// TxOutputs is the set of a transaction's outputs still unspent, keyed by
// their original position in Transaction.Outputs. Keying by original
// index (rather than re-packing into a dense slice) keeps find_utxos and
// spend-selection referencing the same (txid, out_idx) pair the chain
// itself used, even after sibling outputs in the same transaction are
// spent out of order.
type TxOutputs struct {
	Outputs map[int]TxOutput
}

// Serialize gob-encodes the output set for storage in the utxos namespace.
func (outs TxOutputs) Serialize() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(outs); err != nil {
		Handle(err)
	}
	return buf.Bytes()
}

// DeserializeOutputs decodes a value previously produced by Serialize.
func DeserializeOutputs(data []byte) TxOutputs {
	var outputs TxOutputs
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&outputs); err != nil {
		Handle(err)
	}
	return outputs
}

// Transaction is a set of inputs spending prior outputs and a set of new
// outputs, identified by the hash of its own contents.
type Transaction struct {
	ID      []byte
	Inputs  []TxInput
	Outputs []TxOutput
}

// Hash returns the SHA-256 digest of the transaction with ID cleared.
// This is what ID itself is set to, and what TrimmedCopy starts from.
func (tx *Transaction) Hash() []byte {
	txCopy := *tx
	txCopy.ID = []byte{}

	hash := sha256.Sum256(txCopy.Serialize())
	return hash[:]
}

// Serialize gob-encodes the transaction.
func (tx Transaction) Serialize() []byte {
	var encoded bytes.Buffer
	enc := gob.NewEncoder(&encoded)
	if err := enc.Encode(tx); err != nil {
		Handle(err)
	}
	return encoded.Bytes()
}

// DeserializeTransaction decodes a transaction previously produced by
// Serialize, as sent in a `tx` wire message. Peer input,
// so a decode failure is reported rather than panicking.
func DeserializeTransaction(data []byte) (Transaction, error) {
	var tx Transaction
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&tx); err != nil {
		return Transaction{}, fmt.Errorf("decode tx: %v: %w", err, errs.FormatError)
	}
	return tx, nil
}

// SetID sets tx.ID to tx.Hash().
func (tx *Transaction) SetID() {
	tx.ID = tx.Hash()
}

// CoinbaseTx builds the reward transaction for a newly mined block. If
// label is empty, a default reward message is used. In every case 32 random
// bytes are folded into the input's PubKey field after the label so that two
// coinbases paying the same address don't collide on id.
func CoinbaseTx(to, label string) *Transaction {
	if label == "" {
		label = fmt.Sprintf("Reward to '%s'", to)
	}

	randData := make([]byte, 32)
	if _, err := rand.Read(randData); err != nil {
		Handle(err)
	}

	txin := TxInput{
		ID:        []byte{},
		Out:       -1,
		Signature: nil,
		PubKey:    append([]byte(label), randData...),
	}
	txout := NewTXOutput(Subsidy, to)

	tx := Transaction{nil, []TxInput{txin}, []TxOutput{*txout}}
	tx.SetID()

	return &tx
}

// IsCoinbase reports whether this is a block-reward transaction.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && len(tx.Inputs[0].ID) == 0 && tx.Inputs[0].Out == -1
}

// trimmedMessages builds the per-input hash that Sign and Verify both
// operate on: a copy of the transaction with every input's signature
// cleared and PubKey replaced by the spent output's PubKeyHash, rehashed
// once per input with only that input's PubKey populated. Returns
// errs.InvalidTransaction if an input references an output index that
// doesn't exist on the previous transaction.
func (tx *Transaction) trimmedMessages(prevTXs map[string]Transaction) ([][]byte, error) {
	txCopy := tx.TrimmedCopy()
	messages := make([][]byte, len(tx.Inputs))

	for inID, in := range tx.Inputs {
		prevTx := prevTXs[hex.EncodeToString(in.ID)]

		if in.Out < 0 || in.Out >= len(prevTx.Outputs) {
			return nil, fmt.Errorf("input %d references output %d of tx %x: %w", inID, in.Out, in.ID, errs.InvalidTransaction)
		}

		txCopy.Inputs[inID].Signature = nil
		txCopy.Inputs[inID].PubKey = prevTx.Outputs[in.Out].PubKeyHash
		txCopy.ID = txCopy.Hash()
		txCopy.Inputs[inID].PubKey = nil

		messages[inID] = txCopy.ID
	}

	return messages, nil
}

// Sign produces an ed25519 signature for every input, proving ownership of
// the output it spends. Coinbase transactions are left unsigned.
func (tx *Transaction) Sign(privateKey ed25519.PrivateKey, prevTXs map[string]Transaction) error {
	if tx.IsCoinbase() {
		return nil
	}

	for _, in := range tx.Inputs {
		prevID := hex.EncodeToString(in.ID)
		if _, ok := prevTXs[prevID]; !ok {
			return fmt.Errorf("sign tx %x: previous tx %s: %w", tx.ID, prevID, errs.NotFound)
		}
	}

	messages, err := tx.trimmedMessages(prevTXs)
	if err != nil {
		return err
	}
	for inID, message := range messages {
		tx.Inputs[inID].Signature = ed25519.Sign(privateKey, message)
	}

	return nil
}

// Verify checks that every non-coinbase input carries a valid signature
// over its trimmed-copy message, produced by the key that locked the
// output it spends.
func (tx *Transaction) Verify(prevTXs map[string]Transaction) bool {
	if tx.IsCoinbase() {
		return true
	}

	for _, in := range tx.Inputs {
		prevID := hex.EncodeToString(in.ID)
		prevTx, ok := prevTXs[prevID]
		if !ok || prevTx.ID == nil {
			return false
		}
	}

	messages, err := tx.trimmedMessages(prevTXs)
	if err != nil {
		return false
	}
	for inID, message := range messages {
		in := tx.Inputs[inID]
		prevTx := prevTXs[hex.EncodeToString(in.ID)]
		if !in.UsesKey(prevTx.Outputs[in.Out].PubKeyHash) {
			return false
		}
		if !ed25519.Verify(ed25519.PublicKey(in.PubKey), message, in.Signature) {
			return false
		}
	}

	return true
}

// NewTransaction builds, selects inputs for, and signs a transfer of
// amount tokens from the wallet at `from` to `to`, using view to select
// spendable outputs. Returns errs.InsufficientFunds if the sender's
// spendable balance is below amount.
func NewTransaction(from *wallet.Wallet, to string, amount int, view *UTXOSet) (*Transaction, error) {
	var inputs []TxInput
	var outputs []TxOutput

	pubKeyHash := wallet.PublicKeyHash(from.PublicKey)
	acc, validOutputs := view.FindSpendableOutputs(pubKeyHash, amount)

	if acc < amount {
		return nil, fmt.Errorf("need %d, have %d: %w", amount, acc, errs.InsufficientFunds)
	}

	for id, outs := range validOutputs {
		txID, err := hex.DecodeString(id)
		if err != nil {
			return nil, fmt.Errorf("decode utxo txid %s: %w", id, errs.FormatError)
		}

		for _, out := range outs {
			inputs = append(inputs, TxInput{
				ID:        txID,
				Out:       out,
				Signature: nil,
				PubKey:    from.PublicKey,
			})
		}
	}

	outputs = append(outputs, *NewTXOutput(amount, to))
	if acc > amount {
		outputs = append(outputs, *NewTXOutput(acc-amount, string(from.Address())))
	}

	tx := Transaction{ID: nil, Inputs: inputs, Outputs: outputs}
	tx.SetID()

	if err := view.Blockchain.SignTransaction(&tx, from.PrivateKey); err != nil {
		return nil, err
	}

	return &tx, nil
}

// TrimmedCopy returns a copy of the transaction with every input's
// Signature and PubKey cleared, the starting point for Sign/Verify.
func (tx *Transaction) TrimmedCopy() Transaction {
	var inputs []TxInput
	var outputs []TxOutput

	for _, in := range tx.Inputs {
		inputs = append(inputs, TxInput{
			ID:        in.ID,
			Out:       in.Out,
			Signature: nil,
			PubKey:    nil,
		})
	}

	for _, out := range tx.Outputs {
		outputs = append(outputs, TxOutput{
			Value:      out.Value,
			PubKeyHash: out.PubKeyHash,
		})
	}

	return Transaction{ID: tx.ID, Inputs: inputs, Outputs: outputs}
}

// String renders a human-readable summary of the transaction, used by the
// printchain CLI command.
func (tx Transaction) String() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("--- Transaction %x:", tx.ID))
	for i, in := range tx.Inputs {
		lines = append(lines, fmt.Sprintf("     Input %d:", i))
		lines = append(lines, fmt.Sprintf("       TXID:      %x", in.ID))
		lines = append(lines, fmt.Sprintf("       Out:       %d", in.Out))
		lines = append(lines, fmt.Sprintf("       Signature: %x", in.Signature))
		lines = append(lines, fmt.Sprintf("       PubKey:    %x", in.PubKey))
	}
	for i, out := range tx.Outputs {
		lines = append(lines, fmt.Sprintf("     Output %d:", i))
		lines = append(lines, fmt.Sprintf("       Value:      %d", out.Value))
		lines = append(lines, fmt.Sprintf("       PubKeyHash: %x", out.PubKeyHash))
	}

	return strings.Join(lines, "\n")
}
