package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulschiretz/recall/cmd"
	"github.com/paulschiretz/recall/pkg/buildinfo"
	"github.com/paulschiretz/recall/pkg/flagparse"
	"github.com/paulschiretz/recall/pkg/plog"
)

// run is the main application logic. It returns an error if something goes
// wrong, allowing the main function to handle exit codes.
func run(ctx context.Context, args []string) error {
	command, flagMap, err := flagparse.Parse(args)
	if err != nil {
		return err
	}

	switch command {
	case flagparse.None:
		return nil
	case flagparse.Version:
		return cmd.RunVersion(buildinfo.Name, buildinfo.Version)
	}

	plog.Debug("Starting "+buildinfo.Name, "version", buildinfo.Version, "command", command.String(), "pid", os.Getpid())

	switch command {
	case flagparse.Backup:
		return cmd.RunBackup(ctx, flagMap)
	case flagparse.Prune:
		return cmd.RunPrune(ctx, flagMap)
	case flagparse.List:
		return cmd.RunList(ctx, flagMap)
	case flagparse.Profile:
		return cmd.RunProfile(ctx, flagMap, os.Stdout)
	default:
		return fmt.Errorf("internal error: unknown command %s", command)
	}
}

func main() {
	// Set up a context that is canceled when an interrupt signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for interrupt signals (like Ctrl+C) in a separate goroutine.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
