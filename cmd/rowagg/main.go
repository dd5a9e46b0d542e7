package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/daviszhen/rowagg/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initRootCmd()
	initAggregateCmd()
	initLayoutCmd()
	initSortKeyCmd()
}

var runCfg = util.DefaultConfig()

var cfgFile string

///root cmd

var info = "rowagg groups and aggregates rows of csv or parquet files"
var RootCmd = &cobra.Command{
	Use:          "rowagg",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use rowagg --help or -h")
	},
}

func initRootCmd() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "toml config file")
	RootCmd.PersistentFlags().String("log_level", "", "debug, info, warn or error")
	viper.BindPFlag("log.level", RootCmd.PersistentFlags().Lookup("log_level"))
}

func loadConfig() {
	cfg, err := util.LoadConfig(cfgFile)
	if err != nil {
		util.Error("load config file failed",
			zap.String("fpath", cfgFile),
			zap.Error(err))
		os.Exit(1)
	}
	if viper.IsSet("log.level") {
		cfg.Log.Level = viper.GetString("log.level")
	}
	err = util.InitLogger(cfg.Log)
	if err != nil {
		util.Error("init logger failed", zap.Error(err))
		os.Exit(1)
	}
	runCfg = cfg
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
