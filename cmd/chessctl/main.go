package main

import "github.com/mcoot/chessrelay/internal/cli"

func main() {
	cli.Execute()
}
