package main

import "github.com/devicelab-dev/domkit/pkg/cli"

func main() {
	cli.Execute()
}
