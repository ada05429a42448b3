package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newWhoamiCmd() *cobra.Command {
	var (
		baseURL = envOr("PERSONA_URL", "http://localhost:8080")
		token   = envOr("PERSONA_TOKEN", "")
		userID  string
		start   bool
	)
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Muestra la identidad activa de un agente en ejecución",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" && userID == "" {
				return fmt.Errorf("falta --token (env PERSONA_TOKEN) o --user-id")
			}
			cl := &http.Client{Timeout: 15 * time.Second}
			do := func(method, path string) (int, []byte, error) {
				req, err := http.NewRequestWithContext(cmd.Context(), method, strings.TrimRight(baseURL, "/")+path, nil)
				if err != nil {
					return 0, nil, err
				}
				if token != "" {
					req.Header.Set("Authorization", "Bearer "+token)
				} else {
					req.Header.Set("X-User-ID", userID)
				}
				resp, err := cl.Do(req)
				if err != nil {
					return 0, nil, err
				}
				defer resp.Body.Close()
				b, _ := io.ReadAll(resp.Body)
				return resp.StatusCode, b, nil
			}

			method, path := http.MethodGet, "/v1/identity"
			if start {
				method, path = http.MethodPost, "/v1/session"
			}
			status, body, err := do(method, path)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("whoami falló: status=%d body=%s", status, string(body))
			}
			var v any
			if json.Unmarshal(body, &v) == nil {
				p, _ := json.MarshalIndent(v, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(p))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", baseURL, "URL base del agente (env PERSONA_URL)")
	cmd.Flags().StringVar(&token, "token", token, "Bearer token (env PERSONA_TOKEN)")
	cmd.Flags().StringVar(&userID, "user-id", "", "Principal por X-User-ID (sólo agentes en dev)")
	cmd.Flags().BoolVar(&start, "start", false, "Inicia la sesión (POST /v1/session) en vez de sólo leerla")
	return cmd
}
