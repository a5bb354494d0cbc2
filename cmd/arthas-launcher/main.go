package main

import "github.com/oshokin/arthas-launcher/cmd/arthas-launcher/cmd"

func main() {
	cmd.Execute()
}
