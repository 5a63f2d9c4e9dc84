package main

import (
	"os"

	"github.com/bryanchriswhite/camdump/cmd/camdump/commands"
)

func main() {
	os.Exit(commands.Execute())
}
