package main

import (
	"github.com/swptgo/paycoord/internal/cli"
)

func main() {
	cli.Execute()
}
