// Command golang-blockchain runs a single node of a UTXO blockchain:
// wallet management, chain inspection, transaction submission, and the
// gossip node itself all live behind the subcommands in cli.Run.
package main

import (
	"os"

	"github.com/golang-blockchain/cli"
)

func main() {
	defer os.Exit(0)

	cmd := cli.CommandLine{}
	cmd.Run()
}
