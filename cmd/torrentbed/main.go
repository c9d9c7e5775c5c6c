package main

import (
	"os"

	"github.com/schmitthub/torrentbed/internal/torrentbed"
)

func main() {
	os.Exit(torrentbed.Main())
}
