package main

import (
	cmd "github.com/rohmanhakim/webarchiver/internal/cli"
)

func main() {
	cmd.Execute()
}
