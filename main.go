package main

import "github.com/fakeyudi/awcal/cmd"

func main() {
	cmd.Execute()
}
