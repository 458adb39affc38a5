package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"care-companion/internal/integrations/ollama"
	"care-companion/internal/remotechat"
)

func main() {
	var baseURL, modelName string

	root := &cobra.Command{
		Use:          "chatcli",
		Short:        "Interactive chat against a local Ollama daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			client := ollama.NewClient(ollama.WithBaseURL(baseURL))
			chatter, err := remotechat.New(client, modelName)
			if err != nil {
				return err
			}
			return chatter.Loop(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "err", err)
	}
	root.Flags().StringVar(&baseURL, "url", envOr("OLLAMA_URL", ollama.DefaultBaseURL), "Ollama daemon base URL")
	root.Flags().StringVarP(&modelName, "model", "m", envOr("OLLAMA_MODEL", ollama.DefaultModel), "model to chat with")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
