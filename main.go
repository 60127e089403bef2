package main

import "cdrip/cmd/cdrip/commands"

func main() {
	commands.Execute()
}
