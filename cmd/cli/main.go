package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/iho/payflow/internal/infrastructure/auth"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "payflow-cli",
		Short: "PayFlow CLI tool",
		Long:  `A command line interface for interacting with the PayFlow API.`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the PayFlow API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func paymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Payment operations",
	}

	var (
		buyerID  string
		orderID  string
		quantity int64
		currency string
		lines    string
	)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a payment intent",
		RunE: func(cmd *cobra.Command, args []string) error {
			orderLines, err := parseOrderLines(lines)
			if err != nil {
				return err
			}

			payload := map[string]any{
				"buyer_id":    buyerID,
				"order_id":    orderID,
				"quantity":    quantity,
				"currency":    currency,
				"order_lines": orderLines,
			}
			return doRequest(http.MethodPost, "/api/v1/payments", payload)
		},
	}
	createCmd.Flags().StringVar(&buyerID, "buyer", "", "Buyer id")
	createCmd.Flags().StringVar(&orderID, "order", "", "Order id")
	createCmd.Flags().Int64Var(&quantity, "quantity", 0, "Total amount in minor units")
	createCmd.Flags().StringVar(&currency, "currency", "USD", "ISO 4217 currency code")
	createCmd.Flags().StringVar(&lines, "lines", "", "Order lines as seller:quantity[,seller:quantity...]")
	_ = createCmd.MarkFlagRequired("buyer")
	_ = createCmd.MarkFlagRequired("order")
	_ = createCmd.MarkFlagRequired("quantity")
	_ = createCmd.MarkFlagRequired("lines")

	getCmd := &cobra.Command{
		Use:   "get <payment-id>",
		Short: "Fetch a payment intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(http.MethodGet, "/api/v1/payments/"+args[0], nil)
		},
	}

	authorizeCmd := &cobra.Command{
		Use:   "authorize <payment-id>",
		Short: "Confirm a payment intent with the processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(http.MethodPost, "/api/v1/payments/"+args[0]+"/authorize", nil)
		},
		Args: cobra.ExactArgs(1),
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <payment-id>",
		Short: "Cancel a payment intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(http.MethodPost, "/api/v1/payments/"+args[0]+"/cancel", nil)
		},
	}

	ordersCmd := &cobra.Command{
		Use:   "orders <payment-id>",
		Short: "List the per-seller orders of a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(http.MethodGet, "/api/v1/payments/"+args[0]+"/orders", nil)
		},
	}

	cmd.AddCommand(createCmd, getCmd, authorizeCmd, cancelCmd, ordersCmd)
	return cmd
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	consistencyCmd := &cobra.Command{
		Use:   "consistency",
		Short: "Check that debits equal credits across all postings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(http.MethodGet, "/api/v1/ledger/consistency", nil)
		},
	}

	balanceCmd := &cobra.Command{
		Use:   "balance <account-code>",
		Short: "Show the balance of a ledger account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(http.MethodGet, "/api/v1/ledger/accounts/"+args[0]+"/balance", nil)
		},
	}

	cmd.AddCommand(consistencyCmd, balanceCmd)
	return cmd
}

func adminCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin operations (require a service token)",
	}

	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "Show outbox backlog counts and oldest undelivered age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("PAYFLOW_TOKEN")
			}
			return doAuthorizedRequest(http.MethodGet, "/api/v1/admin/outbox/stats", token, nil)
		},
	}

	cmd.PersistentFlags().StringVar(&token, "token", "", "Service token (defaults to PAYFLOW_TOKEN)")
	cmd.AddCommand(outboxCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		role     string
		subject  string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a service token for the admin API",
		Long:  `Mints a signed JWT using the JWT_SECRET environment variable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			if role != auth.RoleAdmin && role != auth.RoleReadOnly {
				return fmt.Errorf("unknown role %q", role)
			}
			if subject == "" {
				subject = "cli-" + ulid.Make().String()
			}

			token, err := auth.NewJWTManager(secret, duration).Generate(subject, role)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleReadOnly, "Token role (admin or readonly)")
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "Token lifetime")
	return cmd
}

// parseOrderLines parses "seller:quantity[,seller:quantity...]".
func parseOrderLines(s string) ([]map[string]any, error) {
	parts := strings.Split(s, ",")
	lines := make([]map[string]any, 0, len(parts))

	for _, part := range parts {
		seller, qty, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("invalid order line %q, expected seller:quantity", part)
		}
		quantity, err := strconv.ParseInt(qty, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in order line %q", part)
		}
		lines = append(lines, map[string]any{
			"seller_id": seller,
			"quantity":  quantity,
		})
	}

	return lines, nil
}

func doRequest(method, path string, payload any) error {
	return doAuthorizedRequest(method, path, "", payload)
}

func doAuthorizedRequest(method, path, token string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		fmt.Printf("Request failed (Status: %d)\n", resp.StatusCode)
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		fmt.Println(truncate(string(respBody), 2000))
		return nil
	}

	printJSON(parsed)
	return nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Failed to render response: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
