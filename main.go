package main

import "github.com/jmehdipour/compliance-gateway/cmd"

func main() {
	cmd.Execute()
}
