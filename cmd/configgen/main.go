package main

import (
	"flag"
	"log"

	"github.com/MatthiasLenz/TechniteLogic/internal/config"
)

func main() {
	output := flag.String("output", "technite.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "technite.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s client_id=%q transport=%s address=%s", *input, cfg.ClientID, cfg.Transport.Kind, cfg.Transport.Address)
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote config template to %s", *output)
}
