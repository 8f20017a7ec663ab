package main

import (
	"bunk/config"
	"bunk/di"
	"bunk/shared/logger"
)

// @title Bunk API
// @version 1.0
// @description Capacity-constrained booking engine with FIFO waitlists and expiring claim offers.

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Get()

	logger.InitLogger()

	logger.SetLogLevel(cfg)

	http := di.InitializeService()
	http.Serve()
}
