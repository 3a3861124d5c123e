package main

import "github.com/orbital-protocol/relayer/cmd"

func main() {
	cmd.Execute()
}
