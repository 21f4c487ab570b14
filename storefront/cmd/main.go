package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.WithError(err).Error("shopctl failed")
		os.Exit(1)
	}
}
