package main

import "github.com/chrisnestrud/PlayPalace11/cmd/palace/cmd"

func main() {
	cmd.Execute()
}
