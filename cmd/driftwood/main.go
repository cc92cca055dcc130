package main

import "github.com/jmcleod/driftwood/cmd/driftwood/cmd"

func main() {
	cmd.Execute()
}
