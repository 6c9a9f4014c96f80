package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kkkkikiki/infestor/internal/config"
	"github.com/kkkkikiki/infestor/internal/repository"
	"github.com/kkkkikiki/infestor/internal/service"
)

func addGiftCodeCommand() *cobra.Command {
	var (
		code       string
		createdFor string
	)

	cmd := &cobra.Command{
		Use:   "add_gift_code",
		Short: "Store a single-use gift code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			log := loggerFromContext(ctx)

			if code == "" {
				return errors.New("You need to pass --code as an argument.")
			}

			env, cleanup, err := newEnv(ctx, cfg, log, "", true)
			if err != nil {
				return err
			}
			defer cleanup()

			_, err = env.AddGiftCode(ctx, code, createdFor, service.SourceOperator)
			if errors.Is(err, repository.ErrDuplicateCode) {
				return errors.New("This gift code already exists. Pick another one.")
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Gift code: %s is added to the database.\n", code)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "gift code")
	cmd.Flags().StringVar(&createdFor, "created-for", "", "account the code is issued for")
	return cmd
}
