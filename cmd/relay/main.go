package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ExtraHash/sealink"
)

func main() {
	configPath := flag.String("config", "", "path to yaml relay config")
	port := flag.Int("port", 0, "override listen port")
	flag.Parse()

	config := sealink.RelayConfig{Port: 10187, LogLevel: 1}
	if *configPath != "" {
		loaded, err := sealink.LoadRelayConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to read config:", err)
			os.Exit(1)
		}
		config = loaded
	}
	if *port != 0 {
		config.Port = *port
	}

	sealink.LoggerConfig(config.LogLevel)

	relay, err := sealink.NewRelayServer(config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start relay:", err)
		os.Exit(1)
	}
	if err := relay.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "relay stopped:", err)
		os.Exit(1)
	}
}
