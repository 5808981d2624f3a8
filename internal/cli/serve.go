package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/icecat/internal/restserver"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST catalog service over the local SQLite catalog",
		Long: "Serve exposes the SQLite catalog in the data directory over HTTP so\n" +
			"other icecat clients can use it with transport.kind: rest.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = s.ServerAddr
			}

			backend, err := attachBackend(s)
			if err != nil {
				return err
			}
			defer backend.Detach()

			srv := restserver.NewServer(backend, addr, a.logger)
			if err := srv.Start(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "serving catalog %s on %s\n", s.Catalog.Name, srv.Addr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			return srv.Stop()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from config)")
	return cmd
}
