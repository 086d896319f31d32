package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	psso "github.com/pilab-dev/partner-sso"
	"github.com/spf13/cobra"
)

var jwksCmd = &cobra.Command{
	Use:   "jwks [url]",
	Short: "Print a JSON Web Key Set",
	Long: `Without an argument, prints the public key set of the configured signing key file,
which is what the Partner registers for score delivery. With a URL, fetches and prints that key set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			set psso.JSONWebKeySet
			err error
		)
		if len(args) == 1 {
			set, err = fetchJWKS(cmd, args[0])
		} else {
			set, err = localJWKS(cmd)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	},
}

func localJWKS(cmd *cobra.Command) (psso.JSONWebKeySet, error) {
	cfg, err := loadConfig()
	if err != nil {
		return psso.JSONWebKeySet{}, err
	}
	if cfg.Keys.PrivateKeyFile == "" {
		return psso.JSONWebKeySet{}, fmt.Errorf("keys.private_key_file is not configured; generated keys only exist inside a running server")
	}
	keys, err := psso.NewJWKSService(cmd.Context(), psso.JWKSOptions{
		PrivateKeyFile: cfg.Keys.PrivateKeyFile,
		KeyID:          cfg.Keys.KeyID,
	})
	if err != nil {
		return psso.JSONWebKeySet{}, err
	}
	return keys.GetJWKS(), nil
}

func fetchJWKS(cmd *cobra.Command, url string) (psso.JSONWebKeySet, error) {
	var set psso.JSONWebKeySet

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return set, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return set, fmt.Errorf("fetching key set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return set, fmt.Errorf("fetching key set: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return set, fmt.Errorf("decoding key set: %w", err)
	}
	return set, nil
}
