package main

import (
	"os"

	"library-indexer/internal/media"
)

func main() {
	err := Execute()
	media.ShutdownVips()
	if err != nil {
		os.Exit(1)
	}
}
