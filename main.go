package main

import "github.com/kiesman99/dezoom/cmd"

func main() {
	cmd.Execute()
}
