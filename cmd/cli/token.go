package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/riffid/internal/crypto"
	"github.com/and161185/riffid/internal/identity"
	"github.com/and161185/riffid/internal/principal"
	"github.com/and161185/riffid/internal/token"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Issue, verify and inspect tokens"}
	cmd.AddCommand(newIssueCmd(a), newVerifyCmd(a), newInspectCmd(a))
	return cmd
}

type issueFlags struct {
	pp         principal.Passport
	userType   int
	roles      []string
	scopes     []string
	rememberMe bool
	save       bool
}

func newIssueCmd(a *app) *cobra.Command {
	f := issueFlags{}
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign an access/refresh token pair for a principal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.pp.UserID <= 0 || f.pp.Username == "" {
				return errors.New("--user-id and --username are required")
			}
			codec, _, err := a.codec()
			if err != nil {
				return err
			}
			f.pp.Type = principal.UserType(f.userType)
			p := principal.New(f.pp)
			p.AppendRoles(f.roles...)
			p.AppendScopes(f.scopes...)

			access, err := codec.CreateToken(token.IssueContext{Principal: p, RememberMe: f.rememberMe})
			if err != nil {
				return err
			}
			refresh, err := codec.CreateRefreshToken(token.IssueContext{Principal: p})
			if err != nil {
				return err
			}
			cl, err := codec.ParseClaims(access)
			if err != nil {
				return err
			}
			tf := tokenFile{AccessToken: access, RefreshToken: refresh, ExpiresAt: cl.ExpiresAt}
			if f.save {
				if err := saveToken(tf); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), tf)
		},
	}
	fl := cmd.Flags()
	fl.Int64Var(&f.pp.UserID, "user-id", 0, "user id")
	fl.StringVar(&f.pp.Username, "username", "", "username")
	fl.StringVar(&f.pp.Tenant, "tenant", principal.DefaultTenant, "tenant")
	fl.StringVar(&f.pp.Platform, "platform", principal.DefaultPlatform, "platform")
	fl.StringVar(&f.pp.App, "app", principal.DefaultApp, "app")
	fl.StringVar(&f.pp.Client, "client", principal.DefaultClient, "client id")
	fl.StringVar(&f.pp.Mobile, "mobile", "", "mobile number")
	fl.IntVar(&f.userType, "type", int(principal.TypeBoss), "user type (1 boss, 2 oauth client)")
	fl.StringSliceVar(&f.roles, "roles", nil, "roles")
	fl.StringSliceVar(&f.scopes, "scopes", nil, "scopes")
	fl.BoolVar(&f.rememberMe, "remember-me", false, "use the remember-me lifetime")
	fl.BoolVar(&f.save, "save", false, "save the pair for later verify/inspect")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [token|-]",
		Short: "Verify a token and print its principal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readToken(firstArg(args), cmd.InOrStdin())
			if err != nil {
				return err
			}
			codec, _, err := a.codec()
			if err != nil {
				return err
			}
			if a.verbose {
				codec.Validate(raw, token.Loud())
			}
			ctx := identity.NewScope(context.Background())
			auth, err := codec.TryAuthentication(ctx, raw)
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), auth.Principal)
		},
	}
}

type inspection struct {
	Header   map[string]any `json:"header"`
	Claims   map[string]any `json:"claims"`
	Passport string         `json:"passport,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [token|-]",
		Short: "Decode a token without verifying its signature",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readToken(firstArg(args), cmd.InOrStdin())
			if err != nil {
				return err
			}
			out, err := inspect(token.CleanToken(raw))
			if err != nil {
				return err
			}
			// the passport is only shown when the issuer secret is configured
			if cfg, err := a.config(); err == nil {
				if c, err := crypto.NewSubjectCipher(cfg.Issuer.Secret); err == nil {
					sub, _ := out.Claims["sub"].(string)
					out.Passport, _ = c.Decrypt(sub)
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func inspect(raw string) (inspection, error) {
	mc := jwt.MapClaims{}
	tok, _, err := jwt.NewParser().ParseUnverified(raw, mc)
	if err != nil {
		return inspection{}, fmt.Errorf("inspect: %w", err)
	}
	return inspection{Header: tok.Header, Claims: mc}, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
