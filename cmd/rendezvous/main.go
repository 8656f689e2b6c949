package main

import (
	"log"

	"go.inet256.org/rendezvous/pkg/rendezvouscmd"
)

func main() {
	if err := rendezvouscmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
