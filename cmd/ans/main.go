package main

import (
	"log"

	"github.com/MrSnakeDoc/ans/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ ans failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ ans failed: %v", err)
	}
}
