package main

import (
	"github.com/0xPolygon/polygon-preconf/command/root"
)

func main() {
	root.NewRootCommand().Execute()
}
