package main

import (
	"github.com/Ethernal-Tech/evm-deposit-relayer/cli"
)

func main() {
	cli.NewRootCommand().Execute()
}
