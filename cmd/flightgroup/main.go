package main

import "github.com/groupflight/flightgroup/internal/cli"

func main() {
	cli.Execute()
}
