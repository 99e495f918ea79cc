package main

import "github.com/unkn0wn-root/recstore/internal/cli"

func main() {
	cli.Execute()
}
