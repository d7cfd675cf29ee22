package main

import "github.com/paneward/paneward/cmd"

func main() {
	cmd.Execute()
}
