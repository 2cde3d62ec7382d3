package main

import "github.com/vietddude/resync/internal/cli"

func main() {
	cli.Execute()
}
