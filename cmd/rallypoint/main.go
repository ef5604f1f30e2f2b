package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/mroshb/rallypoint/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	logger.Init()
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		logger.Sync()
		os.Exit(1)
	}
}
