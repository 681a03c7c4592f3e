package main

import "heiconv/cmd"

func main() {
	cmd.Execute()
}
