package main

import (
	"os"

	"perplexigo/internal/app"
)

func main() {
	os.Exit(app.Run())
}
