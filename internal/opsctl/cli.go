// Package opsctl is the operator command line for a running bot: it mints and
// revokes ops tokens, hashes API keys and calls the /ops endpoints.
package opsctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"freelancer-bot/internal/auth"
	"freelancer-bot/internal/config"
	"freelancer-bot/utils"

	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:8080"

type options struct {
	baseURL string
	token   string
	apiKey  string
	timeout time.Duration
}

// Loader reads server configuration; the token command needs the JWT secret
// and Redis settings of the server it mints for.
type Loader func() (*config.Config, error)

// New builds the root command.
func New(load Loader, version string) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "opsctl",
		Short:         "Operator tools for the freelancer bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.baseURL, "base-url", envOr("OPSCTL_BASE_URL", defaultBaseURL), "bot server base URL")
	flags.StringVar(&opts.token, "token", envOr("OPSCTL_TOKEN", ""), "ops bearer token")
	flags.StringVar(&opts.apiKey, "api-key", envOr("OPSCTL_API_KEY", ""), "ops API key (alternative to --token)")
	flags.DurationVar(&opts.timeout, "timeout", 90*time.Second, "request timeout")

	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newTokenCmd(load))
	root.AddCommand(newRevokeCmd(load))
	root.AddCommand(newHashKeyCmd())
	root.AddCommand(newVerifyCmd(opts))
	root.AddCommand(newSweepCmd(opts))
	root.AddCommand(newStatusCmd(opts))

	return root
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version)
		},
	}
}

func newTokenCmd(load Loader) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
		noRedis bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an ops token signed with OPS_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if ttl <= 0 {
				ttl = cfg.OpsTokenTTL
			}

			// The server only accepts tokens whose JTI it can find in Redis
			// when it runs with Redis, so register there unless told not to.
			var issuer *auth.Issuer
			if noRedis {
				issuer, err = auth.NewIssuer(cfg.OpsJWTSecret, ttl, nil)
			} else {
				rdb, rerr := config.NewRedisClient(cfg)
				if rerr != nil {
					return fmt.Errorf("%w (use --no-redis if the server runs without Redis)", rerr)
				}
				defer rdb.Close()
				issuer, err = auth.NewIssuer(cfg.OpsJWTSecret, ttl, rdb)
			}
			if err != nil {
				return err
			}

			tok, err := issuer.Issue(cmd.Context(), subject, role)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tok)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "name recorded in the token")
	cmd.Flags().StringVar(&role, "role", auth.RoleOps, "ops or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to OPS_TOKEN_TTL)")
	cmd.Flags().BoolVar(&noRedis, "no-redis", false, "skip registering the token id in Redis")
	return cmd
}

func newRevokeCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <jti>",
		Short: "Revoke an ops token by its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rdb, err := config.NewRedisClient(cfg)
			if err != nil {
				return err
			}
			defer rdb.Close()

			issuer, err := auth.NewIssuer(cfg.OpsJWTSecret, cfg.OpsTokenTTL, rdb)
			if err != nil {
				return err
			}
			if err := issuer.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}
}

func newHashKeyCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash an API key for OPS_API_KEY_HASH, generating one if omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				generated, err := utils.GenerateSecureRandomString(40)
				if err != nil {
					return err
				}
				key = generated
				fmt.Fprintf(out, "key:  %s\n", key)
			}

			hashed, err := utils.HashAPIKey(key, cost)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "hash: %s\n", hashed)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost")
	return cmd
}

func newVerifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <invoiceId>",
		Short: "Re-check an invoice with the gateway and complete it if paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodPost, "/ops/payments/verify/"+url.PathEscape(args[0]))
		},
	}
}

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the payment expiration sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodPost, "/ops/payments/sweep")
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the expiration sweeper status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, "/ops/payments/sweeper/status")
		},
	}
}

// call performs an authenticated request and pretty-prints the JSON body.
// Non-2xx responses are printed too and reported as an error.
func call(cmd *cobra.Command, opts *options, method, path string) error {
	if opts.token == "" && opts.apiKey == "" {
		return errors.New("set --token or --api-key")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(opts.baseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	} else {
		req.Header.Set("X-API-Key", opts.apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty any
	if json.Unmarshal(body, &pretty) == nil {
		if err := writeJSON(cmd.OutOrStdout(), pretty); err != nil {
			return err
		}
	} else if len(body) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", body)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
