package commands

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"
)

// callerIdentity is the output of whoami.
type callerIdentity struct {
	Account string `json:"Account"`
	Arn     string `json:"Arn"`
	UserID  string `json:"UserId"`
	Region  string `json:"Region"`
}

func (a *App) installWhoami() {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the AWS identity and region used by the other commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.config.Local != "" {
				return a.usageErrorf("whoami needs AWS credentials and cannot be used with --local")
			}
			cfg, err := a.loadAWSConfig(cmd.Context())
			if err != nil {
				return err
			}

			out, err := sts.NewFromConfig(cfg).GetCallerIdentity(cmd.Context(), &sts.GetCallerIdentityInput{})
			if err != nil {
				return fmt.Errorf("could not get caller identity: %w", err)
			}
			if out.Account == nil {
				return errors.New("could not get caller identity: empty response")
			}
			return a.print(cmd, callerIdentity{
				Account: aws.ToString(out.Account),
				Arn:     aws.ToString(out.Arn),
				UserID:  aws.ToString(out.UserId),
				Region:  cfg.Region,
			})
		},
	}
	a.cmd.AddCommand(cmd)
}
