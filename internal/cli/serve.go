package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conorfennell/blunderfix/internal/web"
)

// ServeCmd returns the serve command.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE:  withApp(runServe),
	}
}

func runServe(cmd *cobra.Command, _ []string, a *app) error {
	ctx := cmd.Context()
	imports := a.importer()
	handler := web.NewServer(a.svc, imports, web.Options{
		Filter:              a.cfg.Filter.Severity(),
		SessionBreakMinutes: a.cfg.Review.SessionBreakMinutes,
		DayWindowDays:       a.cfg.Review.DayWindowDays,
		Logger:              a.logger,
	})
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", color.New(color.FgCyan).Sprint("http://"+a.cfg.Server.Addr))
	a.logger.Info("Server started", "addr", a.cfg.Server.Addr)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	if err := imports.Clear(context.Background()); err != nil {
		return err
	}
	imports.Wait()
	return nil
}
