package main

import "github.com/rmxdev/rmx/cmd/rmx/cmd"

func main() {
	cmd.Execute()
}
