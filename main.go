package main

import (
	"log"
	"os"

	"nvrexport/cmd"
	"nvrexport/config"
)

func main() {
	cnf, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cmd.Execute(cnf); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
