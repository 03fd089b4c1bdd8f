package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/rdavidhalljr/weekly-allocator/internal/web"
)

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var history web.History
	if a.sqlite != nil {
		history = a.sqlite
	}
	srv := web.NewServer(a.cfg, a.runner, history, a.log)

	loopDone := make(chan error, 1)
	go func() { loopDone <- runLoop(ctx, a) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(a.cfg.Server.Port) }()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.log.WithError(serr).Warn("server shutdown")
	}

	if lerr := <-loopDone; err == nil {
		err = lerr
	}
	return err
}
