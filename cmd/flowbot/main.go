package main

import (
	"context"
	"os"

	"github.com/flowbothq/flowbot/internal/cli"
)

func main() {
	cli.Run(context.Background(), os.Args[1:])
}
