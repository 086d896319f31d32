package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pilab-dev/partner-sso/domain"
	"github.com/pilab-dev/partner-sso/internal/partner"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [credential]",
	Short: "Check a Partner credential against the verification endpoint",
	Long: `Sends one verification request for the credential and prints the result.
Without an argument the credential is read from the terminal without echo.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var credential string
		if len(args) == 1 {
			credential = args[0]
		} else if credential, err = promptCredential(cmd); err != nil {
			return err
		}

		client := partner.NewClient(partner.Config{
			CheckURL:          cfg.Partner.CheckURL,
			ServiceCredential: cfg.Partner.ServiceCredential,
			PartnerName:       cfg.Partner.Name,
			Timeout:           cfg.Partner.Timeout,
		}, nil)

		res, err := client.Verify(cmd.Context(), domain.BearerCredential(credential))
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), map[string]any{
			"external_user_id": res.ExternalUserID,
			"enabled":          res.Enabled,
			"ltm_enabled":      res.LTMEnabled,
			"role":             res.Role,
			"permits_login":    res.Permits(),
		})
	},
}

func promptCredential(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no credential given and stdin is not a terminal")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Partner credential: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	credential := strings.TrimSpace(string(raw))
	if credential == "" {
		return "", errors.New("empty credential")
	}
	return credential, nil
}
