package main

import "github.com/ShivamLahoty/MemHawk/cmd"

func main() {
	cmd.Execute()
}
