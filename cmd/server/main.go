// Command riffd serves token authentication over gRPC and HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/and161185/riffid/internal/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgPath string

	root := &cobra.Command{
		Use:           "riffd",
		Short:         "riffid token identity server",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file (env: RIFF_*)")
	root.PersistentFlags().Bool("dev", false, "development logging")
	_ = v.BindPFlag("log.development", root.PersistentFlags().Lookup("dev"))

	load := func() (*config.Config, error) { return config.Load(v, cfgPath) }
	root.AddCommand(newServeCmd(v, load), newMigrateCmd(load))
	return root
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
