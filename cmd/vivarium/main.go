package main

import "github.com/vivariumhq/vivarium/cmd/vivarium/cli"

func main() {
	cli.Execute()
}
