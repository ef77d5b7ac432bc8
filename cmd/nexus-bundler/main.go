package main

import "github.com/nexuspro/nexus-bundler/cmd/nexus-bundler/cmd"

func main() {
	cmd.Execute()
}
