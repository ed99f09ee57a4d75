package main

import "github.com/adscope/harvester/cmd/harvester/cmd"

func main() {
	cmd.Execute()
}
