package main

import "peekraw/internal/cli"

func main() {
	cli.Execute()
}
