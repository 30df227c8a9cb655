package main

import "github.com/stden/EntityLocker/cmd"

func main() {
	cmd.Execute()
}
