// Package main provides the icecat CLI.
package main

import "github.com/mesh-intelligence/icecat/internal/cli"

func main() {
	cli.Execute()
}
