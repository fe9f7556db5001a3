package main

import "github.com/stoneacre/cobble/cmd/cobble/commands"

func main() {
	commands.Execute()
}
