package main

import (
	"flag"

	"fleet-bridge/global"
	"fleet-bridge/initialize"
	"fleet-bridge/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	app, err := initialize.Build(*configPath)
	if err != nil {
		global.Logger.Fatal().Err(err).Msg("bootstrap failed")
	}

	if err := server.StartWSServer(app.Cfg.Server.Host, app.Cfg.Server.Port, app.Cfg.Server.Path, app.Protocol); err != nil {
		global.Logger.Fatal().Err(err).Msg("start websocket server failed")
	}
	app.Monitor.Start()

	select {}
}
