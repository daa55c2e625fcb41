package main

import "forex-observer/internal/cli"

func main() {
	cli.Execute()
}
