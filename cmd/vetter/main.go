package main

import "github.com/ppiankov/vetter/internal/cli"

func main() {
	cli.Execute()
}
