package main

import "github.com/vietddude/optionvault/internal/cli"

func main() {
	cli.Execute()
}
