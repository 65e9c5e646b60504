package main

import (
	"errors"
	"fmt"

	"github.com/nimasrn/sms-credits/internal/app"
	"github.com/nimasrn/sms-credits/internal/config"
	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/internal/repository"
	"github.com/nimasrn/sms-credits/pkg/jwt"
	"github.com/spf13/cobra"
)

var (
	userCredits uint
	withToken   bool
	tokenUserID int64
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user, optionally with starting credits",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := app.OpenDB(config.Get())
		if err != nil {
			return err
		}

		user, err := repository.NewUserRepository(db).Create(cmd.Context(), &model.User{Credits: userCredits})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user_id=%d credits=%d\n", user.ID, user.Credits)

		if withToken {
			return printToken(cmd, user.ID)
		}
		return nil
	},
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Print a bearer token for an existing user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUserID <= 0 {
			return errors.New("--user is required")
		}
		return printToken(cmd, tokenUserID)
	},
}

func printToken(cmd *cobra.Command, userID int64) error {
	cfg := config.Get()
	token, err := jwt.GenerateToken(userID, cfg.JWTSecret, cfg.JWTExpireHours)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func init() {
	createUserCmd.Flags().UintVar(&userCredits, "credits", 0, "starting credit balance")
	createUserCmd.Flags().BoolVar(&withToken, "token", false, "also print a bearer token")
	issueTokenCmd.Flags().Int64Var(&tokenUserID, "user", 0, "user id")
	rootCmd.AddCommand(createUserCmd, issueTokenCmd)
}
