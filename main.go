package main

import (
	"log"
	"os"

	"github.com/avstrong/hotelbooking/internal/app"
	"github.com/avstrong/hotelbooking/internal/config"
	"github.com/avstrong/hotelbooking/internal/logger"
)

func main() {
	l := logger.New(log.Default())

	var exitCode int

	conf, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		l.LogErrorf("Failed to load config: %v", err.Error())
		os.Exit(1)
	}

	if err = app.Run(l, conf); err != nil {
		l.LogErrorf("Failed to run app: %v", err.Error())

		exitCode = 1
	}

	os.Exit(exitCode)
}
