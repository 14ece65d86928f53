package main

import "WaveFM/cmd"

func main() {
	cmd.Execute()
}
