package main

import (
	"log"

	"github.com/austindbirch/postroom/cmd/postctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
