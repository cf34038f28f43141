// Command riffctl issues and inspects riffid tokens offline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/and161185/riffid/internal/config"
	"github.com/and161185/riffid/internal/crypto"
	"github.com/and161185/riffid/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// app carries the state shared by subcommands.
type app struct {
	v       *viper.Viper
	cfgPath string
	verbose bool
}

func (a *app) config() (*config.Config, error) { return config.Load(a.v, a.cfgPath) }

func (a *app) codec() (*token.Codec, *config.Config, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}
	cipher, err := crypto.NewSubjectCipher(cfg.Issuer.Secret)
	if err != nil {
		return nil, nil, err
	}
	log := zap.NewNop()
	if a.verbose {
		log, _ = zap.NewDevelopment()
	}
	c, err := token.New(token.Config{
		Secret:             cfg.JWT.Secret,
		Issuer:             cfg.Issuer.URI,
		Audience:           cfg.JWT.Audience,
		AuthorityKey:       cfg.JWT.Authorities,
		Validity:           cfg.JWT.TokenValidity(),
		RememberMeValidity: cfg.JWT.RememberMeValidity(),
		RefreshValidity:    cfg.JWT.RefreshValidity(),
	}, cipher, token.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	root := &cobra.Command{
		Use:           "riffctl",
		Short:         "riffid token tool",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "YAML config file (env: RIFF_*)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log validation failures")
	root.AddCommand(newTokenCmd(a))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
