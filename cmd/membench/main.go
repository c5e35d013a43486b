package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xupit3r/membench/cmd/membench/commands"
	"github.com/xupit3r/membench/internal/config"
	"github.com/xupit3r/membench/internal/device"
	"github.com/xupit3r/membench/internal/pipeline"
)

// Exit statuses
const (
	exitOK         = 0
	exitDevice     = 1
	exitValidation = 2
	exitConfig     = 3
	exitUsage      = 4
	exitInterrupt  = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx, os.Args[1:])
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

// exitCode classifies the single error a command returns. Configuration
// errors only reach here under --strict.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		usageErr      *commands.UsageError
		cfgErr        *config.Error
		validationErr *pipeline.ValidationError
		devErr        *device.Error
	)
	switch {
	case errors.As(err, &usageErr):
		return exitUsage
	case errors.As(err, &validationErr):
		return exitValidation
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.As(err, &devErr):
		return exitDevice
	case errors.Is(err, context.Canceled):
		return exitInterrupt
	}
	return exitDevice
}
