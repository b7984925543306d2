package main

import "github.com/forPelevin/autoclip/internal/cli"

func main() {
	cli.Main()
}
