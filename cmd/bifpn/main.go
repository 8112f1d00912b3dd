// Package main provides the BiFPN command line tool.
//
// Usage:
//
//	bifpn summary --config bifpn.yaml
//	bifpn forward --size 64 --batch 2
//	bifpn export --out bifpn.safetensors --half
//	bifpn fit --steps 50 --optimizer adam --lr 0.01
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
