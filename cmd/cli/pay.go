package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/sms-credits/internal/client"
	"github.com/nimasrn/sms-credits/internal/config"
	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/spf13/cobra"
)

var (
	payAPI      string
	payToken    string
	payPlanID   int64
	payAmount   uint
	payPhone    string
	payInterval time.Duration
	payTimeout  time.Duration
)

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Buy credits through the API and wait for the payment to settle",
	Long: `Start an STK push for a plan or an amount and poll its status until it is
settled or the timeout passes. Giving up on polling does not mean the payment
failed; the callback may still arrive.

Examples:
  cli pay --token=$TOKEN --plan=2 --phone=0712345678
  cli pay --token=$TOKEN --amount=50 --phone=254712345678 --timeout=3m`,
	RunE: runPay,
}

func init() {
	payCmd.Flags().StringVar(&payAPI, "api", "", "API base url, defaults to APP_BASE_URL + HTTP_BASE_REQUEST_URI")
	payCmd.Flags().StringVar(&payToken, "token", "", "bearer token")
	payCmd.Flags().Int64Var(&payPlanID, "plan", 0, "plan id to subscribe to")
	payCmd.Flags().UintVar(&payAmount, "amount", 0, "recharge amount")
	payCmd.Flags().StringVar(&payPhone, "phone", "", "payer phone number")
	payCmd.Flags().DurationVar(&payInterval, "interval", client.DefaultPollInterval, "status poll interval")
	payCmd.Flags().DurationVar(&payTimeout, "timeout", client.DefaultPollTimeout, "how long to wait for the payment")
	_ = payCmd.MarkFlagRequired("token")
	_ = payCmd.MarkFlagRequired("phone")
	rootCmd.AddCommand(payCmd)
}

func runPay(cmd *cobra.Command, args []string) error {
	if (payPlanID > 0) == (payAmount > 0) {
		return errors.New("exactly one of --plan or --amount is required")
	}

	base := payAPI
	if base == "" {
		cfg := config.Get()
		base = cfg.AppBaseUrl + cfg.HttpBaseRequestUrl
	}
	api := client.NewAPIClient(client.Config{BaseURL: base, Token: payToken})

	req := client.PaymentRequest{Phone: payPhone, Amount: payAmount}
	if payPlanID > 0 {
		req.PlanID = &payPlanID
	}

	ctx := cmd.Context()
	payment, err := api.InitiatePayment(ctx, req)
	if err != nil {
		return fmt.Errorf("initiate payment: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "payment %s started, approve the prompt on %s\n", payment.Reference, payPhone)

	poller := client.NewPoller(api, payInterval, payTimeout)
	poller.OnPoll = func(status model.TransactionStatus) {
		fmt.Fprintf(out, "status: %s\n", status)
	}
	res := poller.Wait(ctx, payment.Reference)

	switch res.Outcome {
	case client.OutcomeSucceeded:
		credits, err := api.Credits(ctx)
		if err != nil {
			fmt.Fprintln(out, "payment succeeded")
			return nil
		}
		fmt.Fprintf(out, "payment succeeded, balance is %d credits\n", credits)
	case client.OutcomeFailed:
		return fmt.Errorf("payment %s failed", payment.Reference)
	case client.OutcomeTimedOut:
		fmt.Fprintf(out, "still pending after %s, check later with the reference %s\n", payTimeout, payment.Reference)
	case client.OutcomeCancelled:
		fmt.Fprintln(out, "cancelled")
	}
	return nil
}
