package wallet

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// Wallet address layout, Bitcoin-style: [version(1)][pubkeyhash(20)][checksum(4)].
const (
	checksumLength = 4
	version        = byte(0x00)
)

// Wallet is an ed25519 keypair. A wallet doesn't hold coins itself — it
// holds the key that can spend outputs locked to its address.
type Wallet struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// Address derives the Base58 address for this wallet:
// PublicKey -> SHA256 -> RIPEMD160 -> +version -> +checksum -> Base58.
func (w Wallet) Address() []byte {
	pubHash := PublicKeyHash(w.PublicKey)

	versionedHash := append([]byte{version}, pubHash...)
	checksum := Checksum(versionedHash)

	fullHash := append(versionedHash, checksum...)
	return Base58Encode(fullHash)
}

// ValidateAddress checks the structure and checksum of a Base58 address.
func ValidateAddress(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != 1+20+checksumLength {
		return false
	}

	addressVersion := decoded[0]
	pubKeyHash := decoded[1 : len(decoded)-checksumLength]
	actualChecksum := decoded[len(decoded)-checksumLength:]

	targetChecksum := Checksum(append([]byte{addressVersion}, pubKeyHash...))
	return bytes.Equal(actualChecksum, targetChecksum)
}

// NewKeyPair generates a fresh ed25519 keypair from crypto/rand.
func NewKeyPair() (ed25519.PrivateKey, ed25519.PublicKey) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return privateKey, publicKey
}

// MakeWallet constructs a wallet around a fresh keypair.
func MakeWallet() *Wallet {
	privateKey, publicKey := NewKeyPair()
	return &Wallet{privateKey, publicKey}
}

// PublicKeyHash is RIPEMD160(SHA256(pubKey)), the "lock" value stored in
// every output and address.
func PublicKeyHash(pubKey []byte) []byte {
	pubHash := sha256.Sum256(pubKey)

	hasher := ripemd160.New()
	if _, err := hasher.Write(pubHash[:]); err != nil {
		panic(err)
	}
	return hasher.Sum(nil)
}

// Checksum is the first 4 bytes of double-SHA256, used for address
// error-detection.
func Checksum(payload []byte) []byte {
	firstHash := sha256.Sum256(payload)
	secondHash := sha256.Sum256(firstHash[:])
	return secondHash[:checksumLength]
}
