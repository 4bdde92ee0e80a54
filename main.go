package main

import (
	"github/chapool/go-hardware-signer/cmd"
)

func main() {
	cmd.Execute()
}
