package main

import (
	"fed-monitor/internal/cli"
)

func main() {
	cli.Execute()
}
