package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/compute"
)

//layout cmd

var layoutInfo = "print the aggregate row layout of group types and aggregates"
var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: layoutInfo,
	Long:  layoutInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printLayout(
			os.Stdout,
			viper.GetString("layout.groups"),
			viper.GetString("layout.aggregates"))
	},
}

func initLayoutCmd() {
	RootCmd.AddCommand(layoutCmd)
	layoutCmd.Flags().String("groups", "", "group types separated by ';'")
	layoutCmd.Flags().String("aggregates", "", "aggregates over types like sum(bigint);count(*) separated by ';'")

	viper.BindPFlag("layout.groups", layoutCmd.Flags().Lookup("groups"))
	viper.BindPFlag("layout.aggregates", layoutCmd.Flags().Lookup("aggregates"))
}

func splitList(text string) []string {
	var ret []string
	for _, field := range strings.Split(text, ";") {
		field = strings.TrimSpace(field)
		if field != "" {
			ret = append(ret, field)
		}
	}
	return ret
}

func printLayout(out io.Writer, groups, aggregates string) error {
	var groupTypes []common.LType
	for _, name := range splitList(groups) {
		typ, err := common.ParseLType(name)
		if err != nil {
			return err
		}
		groupTypes = append(groupTypes, typ)
	}
	if len(groupTypes) == 0 {
		return fmt.Errorf("no group types")
	}

	var aggrs []*compute.AggrObject
	for _, text := range splitList(aggregates) {
		name, arg, err := parseAggregate(text)
		if err != nil {
			return err
		}
		var args []common.LType
		if arg != "" {
			typ, err := common.ParseLType(arg)
			if err != nil {
				return err
			}
			args = append(args, typ)
		}
		fun, err := compute.GetAggrFunc(name, args)
		if err != nil {
			return err
		}
		aggrs = append(aggrs, compute.NewAggrObject(fun))
	}

	layout := compute.NewAggrRowLayout(groupTypes, aggrs)
	_, err := fmt.Fprint(out, layout.Tree().String())
	return err
}
