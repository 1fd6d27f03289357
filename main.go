package main

import "pixconv/cmd"

func main() {
	cmd.Execute()
}
