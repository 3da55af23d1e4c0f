package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/peteski22/cdflow/internal/donation"
	"github.com/peteski22/cdflow/internal/jobs"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job API and import worker",
		Long: "Serves POST /jobs, GET /jobs, GET /jobs/{id} and POST /jobs/{id}/abort, " +
			"running queued imports one at a time until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			return runServe(cmd.Context(), a, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8090", "address to listen on")
	return cmd
}

func runServe(ctx context.Context, a *app, addr string) error {
	stack, err := a.jobStack(ctx, donation.Adapters()...)
	if err != nil {
		return err
	}
	defer stack.close()

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	stack.manager.Start(workerCtx)

	server := &http.Server{
		Addr:              addr,
		Handler:           jobs.NewHandler(stack.manager, a.settings.NationBuilder.Slug, a.logger.Logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	a.logger.Info("job API listening", "addr", addr)

	select {
	case err := <-serveErr:
		stopWorker()
		stack.manager.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving job API: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down job API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("job API shutdown", "error", err)
	}

	// A job cut short here is recorded as failed. Pending jobs stay pending on disk.
	stopWorker()
	stack.manager.Wait()
	return nil
}
