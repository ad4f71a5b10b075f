package main // Entry point package

import (
	"log"

	"github.com/sixeradda/ground-booking/internal/cli"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		log.Fatal(err)
	}
}
