// Package network implements the gossip protocol nodes use to discover
// peers, exchange blocks and transactions, and converge on a shared
// chain tip. Every message is framed as a fixed 12-byte ASCII command
// followed by a gob-encoded payload, sent over a plain TCP connection
// that is read to EOF and closed.
package network

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/golang-blockchain/blockchain"
	"github.com/golang-blockchain/metrics"
	"github.com/vrecan/death/v3"
)

const (
	protocol      = "tcp"
	version       = 1
	commandLength = 12
)

// nodeState holds every piece of mutable state a running node shares
// across its connection-handling goroutines, guarded by a single mutex.
type nodeState struct {
	mu sync.Mutex

	knownNodes      []string
	blocksInTransit [][]byte
	memoryPool      map[string]blockchain.Transaction
}

var state = &nodeState{
	knownNodes: []string{"localhost:3000"},
	memoryPool: make(map[string]blockchain.Transaction),
}

var (
	nodeAddress string
	mineAddress string
)

// KnownNodes returns a snapshot of the peer addresses this node knows.
func KnownNodes() []string {
	state.mu.Lock()
	defer state.mu.Unlock()

	out := make([]string, len(state.knownNodes))
	copy(out, state.knownNodes)
	return out
}

func addKnownNode(addr string) {
	state.mu.Lock()
	defer state.mu.Unlock()

	for _, n := range state.knownNodes {
		if n == addr {
			return
		}
	}
	state.knownNodes = append(state.knownNodes, addr)
	metrics.KnownPeers.Set(float64(len(state.knownNodes)))
}

func dropKnownNode(addr string) {
	state.mu.Lock()
	defer state.mu.Unlock()

	updated := state.knownNodes[:0]
	for _, n := range state.knownNodes {
		if n != addr {
			updated = append(updated, n)
		}
	}
	state.knownNodes = updated
	metrics.KnownPeers.Set(float64(len(state.knownNodes)))
}

func nodeIsKnown(addr string) bool {
	state.mu.Lock()
	defer state.mu.Unlock()

	for _, n := range state.knownNodes {
		if n == addr {
			return true
		}
	}
	return false
}

// Addr broadcasts known node addresses to peers (node discovery).
type Addr struct {
	AddrList []string
}

// Block sends a complete serialized block to a peer.
type Block struct {
	AddrFrom string
	Block    []byte
}

// GetBlocks requests block hashes from a peer (inventory discovery).
type GetBlocks struct {
	AddrFrom string
}

// GetData requests a specific block or transaction by hash.
type GetData struct {
	AddrFrom string
	Type     string
	ID       []byte
}

// Inv advertises available data (blocks or transactions) to a peer.
type Inv struct {
	AddrFrom string
	Type     string
	Items    [][]byte
}

// Tx broadcasts a transaction to the network.
type Tx struct {
	AddrFrom    string
	Transaction []byte
}

// Version is exchanged on connect so nodes can tell who has the longer chain.
type Version struct {
	Version    int
	BestHeight int32
	AddrFrom   string
}

// CmdToBytes pads cmd into the fixed-length command prefix.
func CmdToBytes(cmd string) []byte {
	var b [commandLength]byte
	for i, c := range cmd {
		b[i] = byte(c)
	}
	return b[:]
}

// BytesToCmd strips the zero padding from a command prefix.
func BytesToCmd(b []byte) string {
	var cmd []byte
	for _, c := range b {
		if c != 0x0 {
			cmd = append(cmd, c)
		}
	}
	return string(cmd)
}

// ExtractCmd pulls the command prefix off the front of a message.
func ExtractCmd(request []byte) []byte {
	return request[0:commandLength]
}

// RequestBlocks asks every known node for its block inventory.
func RequestBlocks() {
	for _, node := range KnownNodes() {
		SendGetBlocks(node)
	}
}

// SendAddr broadcasts this node's known-node list to a peer.
func SendAddr(address string) {
	nodes := Addr{AddrList: append(KnownNodes(), nodeAddress)}
	payload := GobEncode(nodes)
	request := append(CmdToBytes("addr"), payload...)

	SendData(address, request)
}

// SendBlock sends a serialized block to a peer.
func SendBlock(addr string, b *blockchain.Block) {
	data := Block{AddrFrom: nodeAddress, Block: b.Serialize()}
	payload := GobEncode(data)
	request := append(CmdToBytes("block"), payload...)

	SendData(addr, request)
}

// SendData opens a connection to addr and writes data to it, dropping
// addr from the known-node list on dial failure.
func SendData(addr string, data []byte) {
	conn, err := net.DialTimeout(protocol, addr, 10*time.Second)
	if err != nil {
		zap.L().Warn("peer unreachable", zap.String("addr", addr))
		dropKnownNode(addr)
		return
	}
	defer conn.Close()

	if _, err := io.Copy(conn, bytes.NewReader(data)); err != nil {
		zap.L().Error("send failed", zap.String("addr", addr), zap.Error(err))
	}
}

// SendGetBlocks requests block hashes from a peer.
func SendGetBlocks(address string) {
	payload := GobEncode(GetBlocks{AddrFrom: nodeAddress})
	request := append(CmdToBytes("get_blocks"), payload...)

	SendData(address, request)
}

// SendGetData requests a block or transaction by hash from a peer.
func SendGetData(address, kind string, id []byte) {
	payload := GobEncode(GetData{AddrFrom: nodeAddress, Type: kind, ID: id})
	request := append(CmdToBytes("get_data"), payload...)

	SendData(address, request)
}

// SendInv advertises inventory (block or transaction hashes) to a peer.
func SendInv(address, kind string, items [][]byte) {
	inventory := Inv{AddrFrom: nodeAddress, Type: kind, Items: items}
	payload := GobEncode(inventory)
	request := append(CmdToBytes("inv"), payload...)

	SendData(address, request)
}

// SendTx broadcasts a transaction to a peer.
func SendTx(address string, tx *blockchain.Transaction) {
	data := Tx{AddrFrom: nodeAddress, Transaction: tx.Serialize()}
	payload := GobEncode(data)
	request := append(CmdToBytes("tx"), payload...)

	SendData(address, request)
}

// SendVersion exchanges version info with a peer on connect.
func SendVersion(address string, chain *blockchain.BlockChain) {
	bestHeight := chain.GetBestHeight()
	payload := GobEncode(Version{Version: version, BestHeight: bestHeight, AddrFrom: nodeAddress})
	request := append(CmdToBytes("version"), payload...)

	SendData(address, request)
}

func decode(request []byte, payload interface{}) error {
	var buff bytes.Buffer
	buff.Write(request[commandLength:])
	return gob.NewDecoder(&buff).Decode(payload)
}

// HandleAddr merges an incoming peer list into our known nodes and asks
// every known peer for blocks.
func HandleAddr(request []byte) {
	var payload Addr
	if err := decode(request, &payload); err != nil {
		zap.L().Error("decode addr", zap.Error(err))
		return
	}

	for _, addr := range payload.AddrList {
		addKnownNode(addr)
	}
	zap.L().Info("known nodes updated", zap.Int("count", len(KnownNodes())))
	RequestBlocks()
}

// HandleBlock validates and stores an incoming block, then continues
// any in-progress block download.
func HandleBlock(request []byte, chain *blockchain.BlockChain) {
	var payload Block
	if err := decode(request, &payload); err != nil {
		zap.L().Error("decode block", zap.Error(err))
		return
	}

	block, err := blockchain.DeserializeBlock(payload.Block)
	if err != nil {
		zap.L().Warn("malformed block payload", zap.String("from", payload.AddrFrom), zap.Error(err))
		return
	}

	if err := chain.AddBlock(block); err != nil {
		zap.L().Warn("rejected block", zap.String("hash", block.Hash), zap.Error(err))
		metrics.BlocksRejected.Inc()
		return
	}
	zap.L().Info("added block", zap.String("hash", block.Hash), zap.Int32("height", block.Height))
	metrics.ChainHeight.Set(float64(chain.GetBestHeight()))

	state.mu.Lock()
	var next []byte
	if len(state.blocksInTransit) > 0 {
		next = state.blocksInTransit[0]
		state.blocksInTransit = state.blocksInTransit[1:]
	}
	state.mu.Unlock()

	if next != nil {
		SendGetData(payload.AddrFrom, "block", next)
	} else {
		utxoSet := blockchain.UTXOSet{Blockchain: chain}
		utxoSet.Reindex()
	}
}

// HandleGetBlocks answers a peer's request with our block hash inventory.
func HandleGetBlocks(request []byte, chain *blockchain.BlockChain) {
	var payload GetBlocks
	if err := decode(request, &payload); err != nil {
		zap.L().Error("decode getblocks", zap.Error(err))
		return
	}

	blocks := chain.GetBlockHashes()
	SendInv(payload.AddrFrom, "block", blocks)
}

// HandleGetData serves a single requested block or mempool transaction.
func HandleGetData(request []byte, chain *blockchain.BlockChain) {
	var payload GetData
	if err := decode(request, &payload); err != nil {
		zap.L().Error("decode getdata", zap.Error(err))
		return
	}

	switch payload.Type {
	case "block":
		block, err := chain.GetBlock(payload.ID)
		if err != nil {
			return
		}
		SendBlock(payload.AddrFrom, &block)
	case "tx":
		txID := hex.EncodeToString(payload.ID)

		state.mu.Lock()
		tx, ok := state.memoryPool[txID]
		state.mu.Unlock()

		if ok {
			SendTx(payload.AddrFrom, &tx)
		}
	}
}

// HandleTx adds an incoming transaction to the mempool, relaying it
// onward if we're the bootstrap node, or mining if we hold transactions
// and are configured to mine.
func HandleTx(request []byte, chain *blockchain.BlockChain) {
	var payload Tx
	if err := decode(request, &payload); err != nil {
		zap.L().Error("decode tx", zap.Error(err))
		return
	}

	tx, err := blockchain.DeserializeTransaction(payload.Transaction)
	if err != nil {
		zap.L().Warn("malformed tx payload", zap.String("from", payload.AddrFrom), zap.Error(err))
		return
	}
	txID := hex.EncodeToString(tx.ID)

	state.mu.Lock()
	state.memoryPool[txID] = tx
	poolSize := len(state.memoryPool)
	state.mu.Unlock()

	metrics.MempoolSize.Set(float64(poolSize))
	zap.L().Debug("transaction received", zap.String("addr", nodeAddress), zap.Int("pool_size", poolSize))

	known := KnownNodes()
	if len(known) > 0 && nodeAddress == known[0] {
		for _, node := range known {
			if node != nodeAddress && node != payload.AddrFrom {
				SendInv(node, "tx", [][]byte{tx.ID})
			}
		}
		return
	}

	if poolSize > 0 && len(mineAddress) > 0 {
		MineTx(chain)
	}
}

// MineTx mines every currently-valid mempool transaction into a new
// block, then recurses while transactions remain.
func MineTx(chain *blockchain.BlockChain) {
	state.mu.Lock()
	pool := make(map[string]blockchain.Transaction, len(state.memoryPool))
	for id, tx := range state.memoryPool {
		pool[id] = tx
	}
	state.mu.Unlock()

	var txs []*blockchain.Transaction
	for id := range pool {
		tx := pool[id]
		if chain.VerifyTransaction(&tx) {
			txs = append(txs, &tx)
		}
	}

	if len(txs) == 0 {
		zap.L().Info("no valid transactions to mine")
		return
	}

	cbTx := blockchain.CoinbaseTx(mineAddress, "")
	txs = append(txs, cbTx)

	newBlock, err := chain.MineBlock(txs)
	if err != nil {
		zap.L().Error("mine block", zap.Error(err))
		return
	}
	metrics.BlocksMined.Inc()
	metrics.ChainHeight.Set(float64(chain.GetBestHeight()))

	utxoSet := blockchain.UTXOSet{Blockchain: chain}
	utxoSet.Reindex()

	zap.L().Info("mined block", zap.String("hash", newBlock.Hash), zap.Int32("height", newBlock.Height))

	state.mu.Lock()
	for _, tx := range txs {
		delete(state.memoryPool, hex.EncodeToString(tx.ID))
	}
	remaining := len(state.memoryPool)
	state.mu.Unlock()
	metrics.MempoolSize.Set(float64(remaining))

	for _, node := range KnownNodes() {
		if node != nodeAddress {
			SendInv(node, "block", [][]byte{[]byte(newBlock.Hash)})
		}
	}

	if remaining > 0 {
		MineTx(chain)
	}
}

// HandleVersion compares chain heights on handshake, requesting a sync
// in whichever direction is behind, replies with our known-node list, and
// records the peer as known.
func HandleVersion(request []byte, chain *blockchain.BlockChain) {
	var payload Version
	if err := decode(request, &payload); err != nil {
		zap.L().Error("decode version", zap.Error(err))
		return
	}

	bestHeight := chain.GetBestHeight()
	otherHeight := payload.BestHeight

	if bestHeight < otherHeight {
		SendGetBlocks(payload.AddrFrom)
	} else if bestHeight > otherHeight {
		SendVersion(payload.AddrFrom, chain)
	}

	SendAddr(payload.AddrFrom)

	if !nodeIsKnown(payload.AddrFrom) {
		addKnownNode(payload.AddrFrom)
	}
}

// HandleInv records advertised inventory and requests its first item: for
// blocks always, for transactions only if it is not already in the mempool.
func HandleInv(request []byte, chain *blockchain.BlockChain) {
	var payload Inv
	if err := decode(request, &payload); err != nil {
		zap.L().Error("decode inv", zap.Error(err))
		return
	}

	zap.L().Debug("received inventory", zap.Int("count", len(payload.Items)), zap.String("type", payload.Type))

	switch payload.Type {
	case "block":
		state.mu.Lock()
		state.blocksInTransit = payload.Items
		state.mu.Unlock()

		if len(payload.Items) == 0 {
			return
		}
		blockHash := payload.Items[0]
		SendGetData(payload.AddrFrom, "block", blockHash)

		state.mu.Lock()
		newInTransit := [][]byte{}
		for _, b := range state.blocksInTransit {
			if !bytes.Equal(b, blockHash) {
				newInTransit = append(newInTransit, b)
			}
		}
		state.blocksInTransit = newInTransit
		state.mu.Unlock()

	case "tx":
		if len(payload.Items) == 0 {
			return
		}
		txID := payload.Items[0]

		state.mu.Lock()
		_, have := state.memoryPool[hex.EncodeToString(txID)]
		state.mu.Unlock()

		if !have {
			SendGetData(payload.AddrFrom, "tx", txID)
		}
	}
}

// HandleConnection reads a full message off conn and routes it by
// command to the matching handler.
func HandleConnection(conn net.Conn, chain *blockchain.BlockChain) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("connection handler panicked", zap.Any("panic", r))
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	req, err := io.ReadAll(conn)
	if err != nil {
		zap.L().Error("read connection", zap.Error(err))
		return
	}
	if len(req) < commandLength {
		return
	}

	command := BytesToCmd(req[:commandLength])
	zap.L().Debug("received command", zap.String("command", command))

	switch command {
	case "addr":
		HandleAddr(req)
	case "block":
		HandleBlock(req, chain)
	case "inv":
		HandleInv(req, chain)
	case "get_blocks":
		HandleGetBlocks(req, chain)
	case "get_data":
		HandleGetData(req, chain)
	case "tx":
		HandleTx(req, chain)
	case "version":
		HandleVersion(req, chain)
	default:
		zap.L().Warn("unknown command", zap.String("command", command))
	}
}

// GobEncode serializes a message payload for network transmission.
func GobEncode(data interface{}) []byte {
	var buff bytes.Buffer
	if err := gob.NewEncoder(&buff).Encode(data); err != nil {
		zap.L().Error("gob encode", zap.Error(err))
	}
	return buff.Bytes()
}

// CloseDB closes the chain's database on SIGINT/SIGTERM.
func CloseDB(chain *blockchain.BlockChain) {
	d := death.NewDeath(syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	d.WaitForDeathWithFunc(func() {
		defer os.Exit(1)
		defer runtime.Goexit()
		chain.Database.Close()
	})
}

// StartServer runs a node's TCP listener and metrics endpoint until the
// process is killed. nodeID names the node's data path and listen port;
// minerAddress, if non-empty, is the reward address this node mines to.
func StartServer(nodeID, minerAddress, metricsAddr string) {
	nodeAddress = fmt.Sprintf("localhost:%s", nodeID)
	mineAddress = minerAddress

	ln, err := net.Listen(protocol, nodeAddress)
	if err != nil {
		zap.L().Fatal("listen", zap.String("addr", nodeAddress), zap.Error(err))
	}
	defer ln.Close()

	chain := blockchain.ContinueBlockChain(nodeID)
	defer chain.Database.Close()
	metrics.ChainHeight.Set(float64(chain.GetBestHeight()))

	go CloseDB(chain)

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			zap.L().Info("metrics listening", zap.String("addr", metricsAddr))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				zap.L().Error("metrics server", zap.Error(err))
			}
		}()
	}

	known := KnownNodes()
	if len(known) > 0 && nodeAddress != known[0] {
		SendVersion(known[0], chain)
	}

	zap.L().Info("node listening", zap.String("addr", nodeAddress))

	for {
		conn, err := ln.Accept()
		if err != nil {
			zap.L().Error("accept", zap.Error(err))
			continue
		}
		go HandleConnection(conn, chain)
	}
}
