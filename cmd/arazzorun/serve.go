package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alirezaght/arazzo/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only HTTP introspection server over the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore()
		if err != nil {
			return infraError(err)
		}
		defer st.Close()

		addr := serveAddr
		if addr == "" {
			addr = cfg.APIAddr
		}
		if addr == "" {
			addr = ":8585"
		}

		fmt.Printf("listening on %s\n", addr)
		server := &httpapi.Server{Store: st, Addr: addr}
		if err := server.Start(ctx); err != nil {
			return infraError(err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config api_addr, default :8585)")
}
