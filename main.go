package main

import "github.com/terraconstructs/gatekeeper/cmd"

func main() {
	cmd.Execute()
}
