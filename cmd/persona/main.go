// Command persona corre el agente de identidad activa y sus herramientas.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env es opcional; las variables del sistema siempre ganan
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:           "persona",
		Short:         "Agente de identidad activa (citizen / vport)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("PERSONA_CONFIG", ""), "Path al config YAML (env PERSONA_CONFIG); vacío = defaults + env")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newWhoamiCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
