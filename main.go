package main

import "github.com/dexpulse/dexpulse/cmd"

func main() {
	cmd.Execute()
}
