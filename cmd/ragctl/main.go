package main

import "github.com/ragmap-dev/ragmap/internal/cli"

func main() {
	cli.Execute()
}
