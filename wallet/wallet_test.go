package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressRoundTrip(t *testing.T) {
	w := MakeWallet()
	address := w.Address()

	assert.True(t, ValidateAddress(string(address)))
}

func TestValidateAddressRejectsGarbage(t *testing.T) {
	assert.False(t, ValidateAddress("not-a-real-address"))
}

func TestValidateAddressRejectsFlippedChecksumByte(t *testing.T) {
	w := MakeWallet()
	decoded := Base58Decode(w.Address())
	decoded[len(decoded)-1] ^= 0xFF
	tampered := Base58Encode(decoded)

	assert.False(t, ValidateAddress(string(tampered)))
}

func TestPublicKeyHashIsStableForSameKey(t *testing.T) {
	w := MakeWallet()

	first := PublicKeyHash(w.PublicKey)
	second := PublicKeyHash(w.PublicKey)

	assert.Equal(t, first, second)
	assert.Len(t, first, 20)
}
