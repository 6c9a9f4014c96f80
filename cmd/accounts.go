package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kkkkikiki/infestor/internal/config"
	"github.com/kkkkikiki/infestor/internal/credentials"
	"github.com/kkkkikiki/infestor/internal/service"
)

func claimAccountCommand() *cobra.Command {
	var (
		creator   string
		minimumRC int
	)

	cmd := &cobra.Command{
		Use:   "claim_account",
		Short: "Spend resource credits on a pending claimed account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			log := loggerFromContext(ctx)

			env, cleanup, err := newEnv(ctx, cfg, log, creator, false)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireCreator(env); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(cmd.ErrOrStderr(), "Fetching RC details of %s\n", env.Creator)

			res, err := env.ClaimAccount(ctx, service.ClaimRequest{
				MinimumRCPercent: float64(minimumRC),
				OnEstimate: func(r *service.ClaimResult) {
					fmt.Fprintf(out, "%s has %d pending claimed accounts. Claiming an account currently requires %.2fMM mana.\n",
						r.Creator, r.PendingBefore, r.CostMM)
					fmt.Fprintf(out, "%s has %dMM mana available and can claim %d more accounts.\n",
						r.Creator, int64(r.ManaMM), r.Claimable)
				},
			})
			switch {
			case errors.Is(err, service.ErrBelowMinimumRC):
				return fmt.Errorf("RC of %s is not enough for the --minimum-rc requirement. %.2f", env.Creator, res.ManaPercent)
			case errors.Is(err, service.ErrInsufficientMana):
				return errors.New("Stopped. Insufficient mana.")
			case err != nil:
				return err
			}

			fmt.Fprintf(out, "Success! %s now has %d pending claimed accounts.\n", res.Creator, res.PendingAfter)
			return nil
		},
	}

	cmd.Flags().StringVar(&creator, "creator", "", "creator account (default $INFESTOR_CREATOR_ACCOUNT)")
	cmd.Flags().IntVar(&minimumRC, "minimum-rc", 0, "minimum RC in percent")
	return cmd
}

func createClaimedAccountCommand() *cobra.Command {
	var (
		creator        string
		newAccountName string
	)

	cmd := &cobra.Command{
		Use:   "create_claimed_account",
		Short: "Create an account from a pending claimed account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			log := loggerFromContext(ctx)

			if newAccountName == "" {
				return errors.New("Add a --new-account-name <account_name> to the command.")
			}

			env, cleanup, err := newEnv(ctx, cfg, log, creator, false)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireCreator(env); err != nil {
				return err
			}

			res, err := env.CreateClaimedAccount(ctx, service.CreateAccountRequest{
				NewAccountName: newAccountName,
				Password:       credentials.NewPrompt("Master key for the new account:"),
			})
			switch {
			case errors.Is(err, service.ErrUsernameTaken):
				return fmt.Errorf("%s already exists. Choose another username.", newAccountName)
			case errors.Is(err, service.ErrNoPendingClaimedAccounts):
				return fmt.Errorf("Stopped. %s has 0 pending claimed accounts.", env.Creator)
			case errors.Is(err, service.ErrInsufficientMana):
				return errors.New("Stopped. Insufficient mana.")
			case err != nil:
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is successfully created. Save your passwords:\n", res.Name)
			for _, pair := range res.Keys.Pairs() {
				fmt.Fprintf(out, "Type: %s\nPublic: %s\nPrivate: %s\n--\n", pair.Role, pair.Public, pair.Private)
			}
			fmt.Fprintf(out, "Master Password: %s\n--\n", res.Keys.Master)
			return nil
		},
	}

	cmd.Flags().StringVar(&creator, "creator", "", "creator account (default $INFESTOR_CREATOR_ACCOUNT)")
	cmd.Flags().StringVar(&newAccountName, "new-account-name", "", "name of the account to create")
	return cmd
}
