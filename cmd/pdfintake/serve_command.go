package main

import (
	"github.com/spf13/cobra"

	"github.com/netysoft/Rag-ChatbotIA/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the intake HTTP server and dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			srv, err := server.New(cfg, server.Info{Version: Version, BuildTime: BuildTime})
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override the configured listen port")
	return cmd
}
