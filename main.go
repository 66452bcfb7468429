package main

import (
	"github.com/midas-in/midas-oral-cancer-labelling-app/cmd"
)

func main() {
	cmd.Execute()
}
