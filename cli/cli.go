// Package cli implements the node's command-line surface: wallet
// management, chain inspection, transaction submission, and node
// startup.
package cli

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"go.uber.org/zap"

	"github.com/golang-blockchain/blockchain"
	"github.com/golang-blockchain/logging"
	"github.com/golang-blockchain/network"
	"github.com/golang-blockchain/wallet"
)

// CommandLine dispatches subcommands parsed from os.Args.
type CommandLine struct{}

func (cli *CommandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println(" getbalance -address ADDRESS - get the balance of an address")
	fmt.Println(" createblockchain -address ADDRESS - create a blockchain")
	fmt.Println(" printchain - Print the blocks in the chain")
	fmt.Println(" send -from FROM -to TO -amount AMOUNT -mine - send coins; -mine mines immediately on this node")
	fmt.Println(" createwallet - create a new wallet")
	fmt.Println(" listaddresses - list the addresses in our wallet file")
	fmt.Println(" reindexutxo - rebuild the UTXO set")
	fmt.Println(" startnode -miner ADDRESS -metrics ADDR - start the node named by NODE_ID; -miner enables mining, -metrics serves /metrics")
}

func (cli *CommandLine) validateArgs() {
	if len(os.Args) < 2 {
		cli.printUsage()
		os.Exit(1)
	}
}

// StartNode boots the gossip listener for nodeID, mining to minerAddress
// if set, and serving Prometheus metrics on metricsAddr if set.
func (cli *CommandLine) StartNode(nodeID, minerAddress, metricsAddr string) {
	zap.L().Info("starting node", zap.String("node_id", nodeID))

	if len(minerAddress) > 0 {
		if !wallet.ValidateAddress(minerAddress) {
			zap.L().Fatal("invalid miner address", zap.String("address", minerAddress))
		}
		zap.L().Info("mining enabled", zap.String("reward_address", minerAddress))
	}

	network.StartServer(nodeID, minerAddress, metricsAddr)
}

func (cli *CommandLine) printChain(nodeID string) {
	chain := blockchain.ContinueBlockChain(nodeID)
	defer chain.Database.Close()

	iter := chain.Iterator()

	for {
		block := iter.Next()

		fmt.Printf("Prev. hash: %s\n", block.PrevHash)
		fmt.Printf("Hash: %s\n", block.Hash)
		pow := blockchain.NewProof(block)
		fmt.Printf("PoW: %s\n", strconv.FormatBool(pow.Validate()))
		for _, tx := range block.Transactions {
			fmt.Printf("Transaction: %s\n", tx)
		}
		fmt.Println()

		if block.PrevHash == "" {
			break
		}
	}
}

func (cli *CommandLine) createBlockChain(address, nodeID string) {
	if !wallet.ValidateAddress(address) {
		zap.L().Fatal("invalid address", zap.String("address", address))
	}

	chain := blockchain.InitBlockChain(address, nodeID)
	defer chain.Database.Close()

	utxoSet := blockchain.UTXOSet{Blockchain: chain}
	utxoSet.Reindex()

	fmt.Println("Finished creating blockchain!")
}

func (cli *CommandLine) getBalance(address, nodeID string) {
	if !wallet.ValidateAddress(address) {
		zap.L().Fatal("invalid address", zap.String("address", address))
	}

	chain := blockchain.ContinueBlockChain(nodeID)
	defer chain.Database.Close()
	utxoSet := blockchain.UTXOSet{Blockchain: chain}

	balance := 0

	pubKeyHash := wallet.Base58Decode([]byte(address))
	pubKeyHash = pubKeyHash[1 : len(pubKeyHash)-4]
	UTXOs := utxoSet.FindUnspentTransactions(pubKeyHash)

	for _, out := range UTXOs {
		balance += out.Value
	}

	fmt.Printf("Balance of %s: %d\n", address, balance)
}

func (cli *CommandLine) send(from, to string, amount int, nodeID string, mineNow bool) {
	if !wallet.ValidateAddress(from) {
		zap.L().Fatal("invalid from address", zap.String("address", from))
	}
	if !wallet.ValidateAddress(to) {
		zap.L().Fatal("invalid to address", zap.String("address", to))
	}

	chain := blockchain.ContinueBlockChain(nodeID)
	defer chain.Database.Close()
	utxoSet := blockchain.UTXOSet{Blockchain: chain}

	wallets, err := wallet.CreateWallets(nodeID)
	if err != nil {
		zap.L().Fatal("load wallets", zap.Error(err))
	}
	w, err := wallets.GetWallet(from)
	if err != nil {
		zap.L().Fatal("get wallet", zap.Error(err))
	}
	if _, err := wallets.GetWallet(to); err != nil {
		zap.L().Fatal("get recipient wallet", zap.Error(err))
	}

	tx, err := blockchain.NewTransaction(w, to, amount, &utxoSet)
	if err != nil {
		zap.L().Fatal("create transaction", zap.Error(err))
	}

	if mineNow {
		cbTx := blockchain.CoinbaseTx(from, "")
		txs := []*blockchain.Transaction{cbTx, tx}
		block, err := chain.MineBlock(txs)
		if err != nil {
			zap.L().Fatal("mine block", zap.Error(err))
		}
		utxoSet.Update(block)
	} else {
		known := network.KnownNodes()
		if len(known) == 0 {
			zap.L().Fatal("no known nodes to relay transaction to")
		}
		network.SendTx(known[0], tx)
		fmt.Println("Sent tx")
	}

	fmt.Println("Success!")
}

func (cli *CommandLine) reindexUTXO(nodeID string) {
	chain := blockchain.ContinueBlockChain(nodeID)
	defer chain.Database.Close()

	utxoSet := blockchain.UTXOSet{Blockchain: chain}
	utxoSet.Reindex()

	count := utxoSet.CountTransactions()
	fmt.Printf("Done! There are %d transactions in the UTXO set.\n", count)
}

func (cli *CommandLine) listAddresses(nodeID string) {
	wallets, err := wallet.CreateWallets(nodeID)
	if err != nil {
		zap.L().Fatal("load wallets", zap.Error(err))
	}

	for _, address := range wallets.GetAllAddresses() {
		fmt.Println(address)
	}
}

func (cli *CommandLine) createWallet(nodeID string) {
	wallets, err := wallet.CreateWallets(nodeID)
	if err != nil {
		zap.L().Fatal("load wallets", zap.Error(err))
	}

	address := wallets.AddWallet()
	if err := wallets.SaveFile(nodeID); err != nil {
		zap.L().Fatal("save wallets", zap.Error(err))
	}

	fmt.Printf("New wallet created with address: %s\n", address)
}

// Run parses os.Args and dispatches to the named subcommand.
func (cli *CommandLine) Run() {
	cli.validateArgs()

	nodeID := os.Getenv("NODE_ID")
	if nodeID == "" {
		fmt.Println("NODE_ID env is not set!")
		runtime.Goexit()
	}

	flush := logging.Init(nodeID)
	defer flush()

	getBalanceCMD := flag.NewFlagSet("getbalance", flag.ExitOnError)
	createBlockChainCMD := flag.NewFlagSet("createblockchain", flag.ExitOnError)
	sendCMD := flag.NewFlagSet("send", flag.ExitOnError)
	printChainCMD := flag.NewFlagSet("printchain", flag.ExitOnError)
	createWalletCMD := flag.NewFlagSet("createwallet", flag.ExitOnError)
	listAddressesCMD := flag.NewFlagSet("listaddresses", flag.ExitOnError)
	reindexUTXOCMD := flag.NewFlagSet("reindexutxo", flag.ExitOnError)
	startNodeCMD := flag.NewFlagSet("startnode", flag.ExitOnError)

	getBalanceAddress := getBalanceCMD.String("address", "", "Wallet address to get the balance of")
	createBlockChainAddress := createBlockChainCMD.String("address", "", "Wallet address to create the blockchain for")
	sendFrom := sendCMD.String("from", "", "Source wallet address")
	sendTo := sendCMD.String("to", "", "Destination wallet address")
	sendAmount := sendCMD.Int("amount", 0, "Amount to send")
	sendMine := sendCMD.Bool("mine", false, "Mine immediately on this node")
	startNodeMiner := startNodeCMD.String("miner", "", "Enable mining mode and send reward to ADDRESS")
	startNodeMetrics := startNodeCMD.String("metrics", "", "Address to serve /metrics on, e.g. :9101")

	switch os.Args[1] {
	case "getbalance":
		blockchain.Handle(getBalanceCMD.Parse(os.Args[2:]))
	case "createblockchain":
		blockchain.Handle(createBlockChainCMD.Parse(os.Args[2:]))
	case "send":
		blockchain.Handle(sendCMD.Parse(os.Args[2:]))
	case "printchain":
		blockchain.Handle(printChainCMD.Parse(os.Args[2:]))
	case "createwallet":
		blockchain.Handle(createWalletCMD.Parse(os.Args[2:]))
	case "listaddresses":
		blockchain.Handle(listAddressesCMD.Parse(os.Args[2:]))
	case "reindexutxo":
		blockchain.Handle(reindexUTXOCMD.Parse(os.Args[2:]))
	case "startnode":
		blockchain.Handle(startNodeCMD.Parse(os.Args[2:]))
	default:
		cli.printUsage()
		runtime.Goexit()
	}

	if getBalanceCMD.Parsed() {
		if *getBalanceAddress == "" {
			getBalanceCMD.Usage()
			os.Exit(1)
		}
		cli.getBalance(*getBalanceAddress, nodeID)
	}

	if createBlockChainCMD.Parsed() {
		if *createBlockChainAddress == "" {
			createBlockChainCMD.Usage()
			os.Exit(1)
		}
		cli.createBlockChain(*createBlockChainAddress, nodeID)
	}

	if printChainCMD.Parsed() {
		cli.printChain(nodeID)
	}

	if createWalletCMD.Parsed() {
		cli.createWallet(nodeID)
	}

	if listAddressesCMD.Parsed() {
		cli.listAddresses(nodeID)
	}

	if reindexUTXOCMD.Parsed() {
		cli.reindexUTXO(nodeID)
	}

	if sendCMD.Parsed() {
		if *sendFrom == "" || *sendTo == "" || *sendAmount <= 0 {
			sendCMD.Usage()
			os.Exit(1)
		}
		cli.send(*sendFrom, *sendTo, *sendAmount, nodeID, *sendMine)
	}

	if startNodeCMD.Parsed() {
		cli.StartNode(nodeID, *startNodeMiner, *startNodeMetrics)
	}
}
