package main

import (
	"cryptospread/internal/cli"
)

func main() {
	cli.Execute()
}
