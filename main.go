package main

import "github.com/streambinder/spotitag/cmd"

func main() {
	cmd.Execute()
}
