package main

import "github.com/numpy/ironsetup/cmd"

func main() {
	cmd.Execute()
}
