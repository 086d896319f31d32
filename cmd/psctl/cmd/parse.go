package cmd

import (
	psso "github.com/pilab-dev/partner-sso"
	"github.com/pilab-dev/partner-sso/internal/bridge"
	"github.com/spf13/cobra"
)

type parsedURL struct {
	Credential struct {
		Length      int    `yaml:"length"`
		Fingerprint string `yaml:"fingerprint"`
	} `yaml:"credential"`
	Identity struct {
		ExternalUserID string `yaml:"external_user_id"`
		Username       string `yaml:"username,omitempty"`
		DisplayName    string `yaml:"display_name,omitempty"`
		Role           string `yaml:"role"`
		Birthdate      string `yaml:"birthdate,omitempty"`
		SchoolID       string `yaml:"school_id,omitempty"`
		StudentRef     string `yaml:"student_ref,omitempty"`
		TeacherRef     string `yaml:"teacher_ref,omitempty"`
	} `yaml:"identity"`
	SuccessPage bool `yaml:"success_page"`
}

var parseURLCmd = &cobra.Command{
	Use:   "parse-url <url>",
	Short: "Parse a Partner success URL",
	Long:  `Extracts the identity carried by a Partner success URL. The credential is only shown as a fingerprint.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		marker, _ := cmd.Flags().GetString("marker")

		credential, identity, err := bridge.ParseSuccessURL(args[0])
		if err != nil {
			return err
		}

		var out parsedURL
		out.SuccessPage = bridge.IsSuccessURL(args[0], marker)
		out.Credential.Length = len(credential.Reveal())
		out.Credential.Fingerprint = psso.HashCredential(credential)
		out.Identity.ExternalUserID = identity.ExternalUserID
		out.Identity.Username = identity.Username
		out.Identity.DisplayName = identity.DisplayName
		out.Identity.Role = string(identity.Role)
		out.Identity.Birthdate = identity.Birthdate
		out.Identity.SchoolID = identity.SchoolID
		out.Identity.StudentRef = identity.StudentRef
		out.Identity.TeacherRef = identity.TeacherRef

		return printYAML(cmd.OutOrStdout(), out)
	},
}

func init() {
	parseURLCmd.Flags().String("marker", bridge.DefaultSuccessMarker, "path fragment identifying the success page")
}
