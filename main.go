package main

import "github.com/nextlevelbuilder/goforge/cmd"

func main() {
	cmd.Execute()
}
