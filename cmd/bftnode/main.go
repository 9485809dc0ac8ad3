package main

import (
	"github.com/ledgerbft/node/cmd/bftnode/cmd"
)

func main() {
	cmd.Execute()
}
