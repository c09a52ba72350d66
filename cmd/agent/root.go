package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"gigsync/config"
	"gigsync/logging"
)

// cli guarda o estado compartilhado entre os subcomandos.
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:           "gigsync",
		Short:         "Local-first write agent: offline queue and per-action rate limits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.v, c.cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (yaml, toml or json)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (json, console)")
	pf.String("storage-driver", "", "storage driver (memory, redis, libsql)")
	_ = c.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = c.v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = c.v.BindPFlag("storage.driver", pf.Lookup("storage-driver"))

	root.AddCommand(newServeCmd(c), newQueueCmd(c), newLimitCmd(c))
	return root
}
