package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goforge/internal/gateway"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket gateway (default)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		setupLogging().Error("serve.startup_failed", "error", err)
		os.Exit(1)
	}
	if err := a.start(ctx); err != nil {
		a.log.Error("serve.startup_failed", "error", err)
		os.Exit(1)
	}

	server := gateway.NewServer(a.cfg, a.coord, a.loops, a.recorder, a.log)
	a.log.Info("serve.ready",
		"provider", a.llm.ProviderName(),
		"model", a.llm.Model(),
	)

	err = server.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.close(shutdownCtx)

	if err != nil {
		a.log.Error("serve.failed", "error", err)
		os.Exit(1)
	}
	a.log.Info("serve.stopped")
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known models per provider",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer a.close(ctx)

			catalog := a.llm.AvailableModels()
			providerNames := make([]string, 0, len(catalog))
			for name := range catalog {
				providerNames = append(providerNames, name)
			}
			sort.Strings(providerNames)

			for _, name := range providerNames {
				marker := " "
				if name == a.llm.ProviderName() {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, name)
				families := make([]string, 0, len(catalog[name]))
				for fam := range catalog[name] {
					families = append(families, fam)
				}
				sort.Strings(families)
				for _, fam := range families {
					for _, m := range catalog[name][fam] {
						fmt.Printf("    %s\n", m)
					}
				}
			}
		},
	}
}
