package main

import "github.com/nextlevelbuilder/pgclaw/cmd"

func main() {
	cmd.Execute()
}
