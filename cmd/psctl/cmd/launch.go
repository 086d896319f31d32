package cmd

import (
	"fmt"

	"github.com/pilab-dev/partner-sso/cache"
	"github.com/pilab-dev/partner-sso/internal/lti"
	"github.com/spf13/cobra"
)

var launchURLCmd = &cobra.Command{
	Use:   "launch-url",
	Short: "Build the Partner authorization URL for a login initiation",
	Long: `Renders the redirect the launch endpoint would answer a third-party initiated login with.
The state is not persisted, so the URL is for inspecting the Partner's configuration only.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.LTI.Enabled {
			return fmt.Errorf("lti is not enabled in the configuration")
		}

		loginHint, _ := cmd.Flags().GetString("login-hint")
		messageHint, _ := cmd.Flags().GetString("message-hint")
		target, _ := cmd.Flags().GetString("target")

		store := cache.NewMemoryLaunchStateStore(cfg.LTI.StateTTL)
		defer store.Close()

		v, err := lti.New(cmd.Context(), lti.Config{
			Issuer:       cfg.LTI.Issuer,
			ClientID:     cfg.LTI.ClientID,
			DeploymentID: cfg.LTI.DeploymentID,
			AuthURL:      cfg.LTI.AuthURL,
			JWKSURL:      cfg.LTI.JWKSURL,
			RedirectURI:  cfg.LTI.RedirectURI,
			Posture:      lti.Posture(cfg.LTI.Posture),
			Environment:  cfg.Environment,
			StateTTL:     cfg.LTI.StateTTL,
		}, store, nil)
		if err != nil {
			return err
		}

		u, err := v.Initiate(cmd.Context(), lti.InitiateRequest{
			LoginHint:     loginHint,
			MessageHint:   messageHint,
			TargetLinkURI: target,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), u)
		return err
	},
}

func init() {
	launchURLCmd.Flags().String("login-hint", "", "login_hint sent by the Partner (required)")
	launchURLCmd.Flags().String("message-hint", "", "lti_message_hint sent by the Partner")
	launchURLCmd.Flags().String("target", "", "target_link_uri")
	_ = launchURLCmd.MarkFlagRequired("login-hint")
}
