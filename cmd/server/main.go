package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"dispatchdesk/internal/app"
)

// @title                       dispatchdesk API
// @version                     1.0
// @description                 Phone verification through the Telegram bot.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	flagSet := pflag.NewFlagSet("dispatchdesk", pflag.ContinueOnError)
	configPath := flagSet.String("config", "config/config.yaml", "path to the YAML config file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if err := app.Run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
