package main

import "github.com/sw33tLie/sponsorcards/cmd"

func main() {
	cmd.Execute()
}
