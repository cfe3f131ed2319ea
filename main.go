package main

import "skywarden/cmd"

func main() {
	cmd.Execute()
}
