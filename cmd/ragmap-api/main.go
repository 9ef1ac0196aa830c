package main

import (
	"context"
	"log"

	"github.com/ragmap-dev/ragmap/internal/ragmap"
)

func main() {
	if err := ragmap.App(context.Background()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
