package main

import (
	"os"

	"github.com/robinei/darch/internal/logging"
)

func newConsoleSink() *logging.ConsoleSink {
	return logging.NewConsoleSink(os.Stderr, logging.All)
}
