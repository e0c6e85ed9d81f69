package wallet

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/golang-blockchain/errs"
)

// walletFile is the per-node persistent store for wallet keys.
const walletFile = "./tmp/wallets_%s.data"

// Wallets is a node's local keystore: address -> keypair.
type Wallets struct {
	Wallets map[string]*Wallet
}

// CreateWallets loads the keystore for nodeID, starting empty if none
// exists yet.
func CreateWallets(nodeID string) (*Wallets, error) {
	wallets := Wallets{Wallets: make(map[string]*Wallet)}

	err := wallets.LoadFile(nodeID)
	if err != nil && !os.IsNotExist(err) {
		return &wallets, fmt.Errorf("load wallets: %w", errs.StoreError)
	}
	return &wallets, nil
}

// AddWallet generates a fresh wallet, stores it under its derived address,
// and returns that address.
func (ws *Wallets) AddWallet() string {
	wallet := MakeWallet()
	address := string(wallet.Address())

	ws.Wallets[address] = wallet

	return address
}

// GetAllAddresses lists every address held in this keystore.
func (ws *Wallets) GetAllAddresses() []string {
	addresses := make([]string, 0, len(ws.Wallets))
	for address := range ws.Wallets {
		addresses = append(addresses, address)
	}
	return addresses
}

// GetWallet looks up a wallet by address.
func (ws *Wallets) GetWallet(address string) (*Wallet, error) {
	w, ok := ws.Wallets[address]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", address, errs.NotFound)
	}
	return w, nil
}

// LoadFile reads and decodes the keystore for nodeID from disk.
func (ws *Wallets) LoadFile(nodeID string) error {
	filePath := fmt.Sprintf(walletFile, nodeID)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return err
	}

	fileContent, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	var wallets Wallets
	decoder := gob.NewDecoder(bytes.NewReader(fileContent))
	if err := decoder.Decode(&wallets); err != nil {
		return err
	}

	ws.Wallets = wallets.Wallets
	return nil
}

// SaveFile encodes and writes the keystore for nodeID to disk.
func (ws *Wallets) SaveFile(nodeID string) error {
	var content bytes.Buffer
	filePath := fmt.Sprintf(walletFile, nodeID)

	encoder := gob.NewEncoder(&content)
	if err := encoder.Encode(ws); err != nil {
		return fmt.Errorf("encode wallets: %w", errs.StoreError)
	}

	if err := os.WriteFile(filePath, content.Bytes(), 0644); err != nil {
		return fmt.Errorf("write wallet file: %w", errs.StoreError)
	}
	return nil
}
