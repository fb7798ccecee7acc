package main

import (
	"flag"
	"fmt"
	"os"

	"fiberops/core/appbootstrap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := appbootstrap.Run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fiberops: %v\n", err)
		os.Exit(1)
	}
}
