package main

import "github.com/MrEthical07/authcore/cmd/authcore/cmd"

func main() {
	cmd.Execute()
}
