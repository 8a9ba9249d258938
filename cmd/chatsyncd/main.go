package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nextvibe/chatsync/internal/config"
	"github.com/nextvibe/chatsync/internal/engine"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		engine.Module(engine.Params{Config: cfg}),
	)

	app.Run()
}
