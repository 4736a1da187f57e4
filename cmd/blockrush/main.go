// Package main is the single-binary entrypoint for BlockRush.
package main

import "github.com/blockrush/blockrush/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
