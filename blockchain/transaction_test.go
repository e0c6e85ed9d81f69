package blockchain

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golang-blockchain/wallet"
)

func TestCoinbaseTxIsCoinbase(t *testing.T) {
	tx := CoinbaseTx(testAddress, "")

	assert.True(t, tx.IsCoinbase())
	assert.Len(t, tx.Inputs, 1)
	assert.Equal(t, -1, tx.Inputs[0].Out)
	assert.NotEmpty(t, tx.ID)
}

func TestCoinbaseTxIDsDontCollide(t *testing.T) {
	a := CoinbaseTx(testAddress, "")
	b := CoinbaseTx(testAddress, "")

	assert.NotEqual(t, a.ID, b.ID, "random padding in PubKey must keep two coinbases to the same address distinct")
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	sender := wallet.MakeWallet()
	recipient := wallet.MakeWallet()

	prevTx := CoinbaseTx(string(sender.Address()), "")

	spend := Transaction{
		Inputs: []TxInput{
			{ID: prevTx.ID, Out: 0, PubKey: sender.PublicKey},
		},
		Outputs: []TxOutput{
			*NewTXOutput(Subsidy, string(recipient.Address())),
		},
	}
	spend.SetID()

	prevTXs := map[string]Transaction{hex.EncodeToString(prevTx.ID): *prevTx}

	require.NoError(t, spend.Sign(sender.PrivateKey, prevTXs))
	assert.True(t, spend.Verify(prevTXs))
}

func TestVerifyRejectsTamperedOutput(t *testing.T) {
	sender := wallet.MakeWallet()
	recipient := wallet.MakeWallet()

	prevTx := CoinbaseTx(string(sender.Address()), "")

	spend := Transaction{
		Inputs: []TxInput{
			{ID: prevTx.ID, Out: 0, PubKey: sender.PublicKey},
		},
		Outputs: []TxOutput{
			*NewTXOutput(Subsidy, string(recipient.Address())),
		},
	}
	spend.SetID()

	prevTXs := map[string]Transaction{hex.EncodeToString(prevTx.ID): *prevTx}
	require.NoError(t, spend.Sign(sender.PrivateKey, prevTXs))

	spend.Outputs[0].Value = Subsidy * 100

	assert.False(t, spend.Verify(prevTXs), "changing an output after signing must invalidate the signature")
}

func TestTrimmedCopyClearsSignaturesAndKeys(t *testing.T) {
	tx := Transaction{
		Inputs: []TxInput{
			{ID: []byte("prev"), Out: 0, Signature: []byte("sig"), PubKey: []byte("key")},
		},
		Outputs: []TxOutput{{Value: 1, PubKeyHash: []byte("hash")}},
	}

	trimmed := tx.TrimmedCopy()

	assert.Nil(t, trimmed.Inputs[0].Signature)
	assert.Nil(t, trimmed.Inputs[0].PubKey)
	assert.Equal(t, tx.Inputs[0].ID, trimmed.Inputs[0].ID)
}
