// cmd/server/main.go
package main

import (
	"fmt"
	"os"

	"github.com/Annany2002/odkx-manager/api"
	"github.com/Annany2002/odkx-manager/config"
	"github.com/Annany2002/odkx-manager/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

func main() {
	customLog.Println("Starting ODK-X manager proxy...")

	cfg, err := config.LoadConfig()
	if err != nil {
		customLog.Fatalf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	router := api.SetupRouter(cfg)

	customLog.Printf("Proxy listening on port %s", cfg.ServerPort)
	if err := router.Run(fmt.Sprintf(":%s", cfg.ServerPort)); err != nil {
		customLog.Fatalf("Failed to start server: %v", err)
	}
}
