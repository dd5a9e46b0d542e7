package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/compute"
	"github.com/daviszhen/rowagg/pkg/storage"
	"github.com/daviszhen/rowagg/pkg/util"
)

//aggregate cmd

var aggregateInfo = "group the input rows and print the aggregates sorted by group"
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: aggregateInfo,
	Long:  aggregateInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := initAggregateCfg(runCfg)
		if err != nil {
			return err
		}
		return runAggregate(cmd.Context(), runCfg, os.Stdout)
	},
}

func initAggregateCmd() {
	RootCmd.AddCommand(aggregateCmd)
	flags := aggregateCmd.Flags()
	flags.String("input", "", "input file")
	flags.String("format", "", "input format. csv, parquet")
	flags.String("delimiter", "", "csv field delimiter")
	flags.Bool("header", true, "csv input starts with a header line")
	flags.String("columns", "", "input columns as name:type separated by ';'")
	flags.StringSlice("group_by", nil, "group columns")
	flags.StringSlice("aggregates", nil, "aggregates like sum(col), avg(col), count(*)")
	flags.Int("workers", 0, "sink workers")
	flags.Int("radix_bits", 0, "partition the result by the top hash bits")
	flags.Int("initial_capacity", 0, "initial directory slots per table")
	flags.Int64("memory_limit", 0, "memory limit in bytes. 0 means unlimited")
	flags.Bool("desc", false, "sort groups descending")
	flags.Bool("nulls_first", true, "sort NULL groups first")
	flags.Int("prefix_len", 0, "varchar sort key prefix length")
	flags.Int("max_rows", 0, "print at most this many groups")
	flags.Bool("verify", false, "check the hash tables before output")
	flags.Bool("print_layout", false, "print the row layout")

	viper.BindPFlag("input.path", flags.Lookup("input"))
	viper.BindPFlag("input.format", flags.Lookup("format"))
	viper.BindPFlag("input.delimiter", flags.Lookup("delimiter"))
	viper.BindPFlag("input.hasHeader", flags.Lookup("header"))
	viper.BindPFlag("input.columns", flags.Lookup("columns"))
	viper.BindPFlag("input.groupBy", flags.Lookup("group_by"))
	viper.BindPFlag("input.aggregates", flags.Lookup("aggregates"))
	viper.BindPFlag("aggregate.workers", flags.Lookup("workers"))
	viper.BindPFlag("aggregate.radixBits", flags.Lookup("radix_bits"))
	viper.BindPFlag("aggregate.initialCapacity", flags.Lookup("initial_capacity"))
	viper.BindPFlag("memory.limit", flags.Lookup("memory_limit"))
	viper.BindPFlag("sort.desc", flags.Lookup("desc"))
	viper.BindPFlag("sort.nullsFirst", flags.Lookup("nulls_first"))
	viper.BindPFlag("sort.prefixLen", flags.Lookup("prefix_len"))
	viper.BindPFlag("debug.maxRows", flags.Lookup("max_rows"))
	viper.BindPFlag("debug.verify", flags.Lookup("verify"))
	viper.BindPFlag("debug.printLayout", flags.Lookup("print_layout"))
}

// initAggregateCfg applies the flags given on the command line over the
// config file.
func initAggregateCfg(cfg *util.Config) error {
	if viper.IsSet("input.path") {
		cfg.Input.Path = viper.GetString("input.path")
	}
	if viper.IsSet("input.format") {
		cfg.Input.Format = viper.GetString("input.format")
	}
	if viper.IsSet("input.delimiter") {
		cfg.Input.Delimiter = viper.GetString("input.delimiter")
	}
	if viper.IsSet("input.hasHeader") {
		cfg.Input.HasHeader = viper.GetBool("input.hasHeader")
	}
	if viper.IsSet("input.columns") {
		columns, err := parseColumnsFlag(viper.GetString("input.columns"))
		if err != nil {
			return err
		}
		cfg.Input.Columns = columns
	}
	if viper.IsSet("input.groupBy") {
		cfg.Input.GroupBy = viper.GetStringSlice("input.groupBy")
	}
	if viper.IsSet("input.aggregates") {
		cfg.Input.Aggregates = viper.GetStringSlice("input.aggregates")
	}
	if viper.IsSet("aggregate.workers") {
		cfg.Aggregate.Workers = viper.GetInt("aggregate.workers")
	}
	if viper.IsSet("aggregate.radixBits") {
		cfg.Aggregate.RadixBits = viper.GetInt("aggregate.radixBits")
	}
	if viper.IsSet("aggregate.initialCapacity") {
		cfg.Aggregate.InitialCapacity = viper.GetInt("aggregate.initialCapacity")
	}
	if viper.IsSet("memory.limit") {
		cfg.Memory.Limit = viper.GetInt64("memory.limit")
	}
	if viper.IsSet("sort.desc") {
		cfg.Sort.Desc = viper.GetBool("sort.desc")
	}
	if viper.IsSet("sort.nullsFirst") {
		cfg.Sort.NullsFirst = viper.GetBool("sort.nullsFirst")
	}
	if viper.IsSet("sort.prefixLen") {
		cfg.Sort.PrefixLen = viper.GetInt("sort.prefixLen")
	}
	if viper.IsSet("debug.maxRows") {
		cfg.Debug.MaxRows = viper.GetInt("debug.maxRows")
	}
	if viper.IsSet("debug.verify") {
		cfg.Debug.Verify = viper.GetBool("debug.verify")
	}
	if viper.IsSet("debug.printLayout") {
		cfg.Debug.PrintLayout = viper.GetBool("debug.printLayout")
	}
	return cfg.Validate()
}

// parseColumnsFlag reads "name:type;name:type". Types may hold commas.
func parseColumnsFlag(text string) ([]util.ColumnOption, error) {
	var ret []util.ColumnOption
	for _, field := range strings.Split(text, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		name, typ, ok := strings.Cut(field, ":")
		if !ok {
			return nil, fmt.Errorf("column %q is not name:type", field)
		}
		ret = append(ret, util.ColumnOption{
			Name: strings.TrimSpace(name),
			Type: strings.TrimSpace(typ),
		})
	}
	return ret, nil
}

func sourceColumns(opts []util.ColumnOption) ([]compute.SourceColumn, error) {
	if len(opts) == 0 {
		return nil, fmt.Errorf("no input columns")
	}
	ret := make([]compute.SourceColumn, 0, len(opts))
	for _, opt := range opts {
		typ, err := common.ParseLType(opt.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", opt.Name, err)
		}
		ret = append(ret, compute.SourceColumn{Name: opt.Name, Typ: typ})
	}
	return ret, nil
}

func columnIndex(names []string, name string) (int, error) {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no such column %s", name)
}

// parseAggregate splits "sum(col)" into its name and argument. The
// argument of count(*) is empty.
func parseAggregate(text string) (string, string, error) {
	text = strings.TrimSpace(text)
	open := strings.IndexByte(text, '(')
	if open <= 0 || !strings.HasSuffix(text, ")") {
		return "", "", fmt.Errorf("aggregate %q is not name(arg)", text)
	}
	name := strings.ToLower(strings.TrimSpace(text[:open]))
	arg := strings.TrimSpace(text[open+1 : len(text)-1])
	if arg == "*" {
		arg = ""
	}
	return name, arg, nil
}

// bindAggregates resolves the aggregates against the input columns and
// returns them with their argument columns in order.
func bindAggregates(texts []string, names []string, types []common.LType) ([]*compute.AggrObject, []int, error) {
	if len(texts) == 0 {
		return nil, nil, fmt.Errorf("no aggregates")
	}
	var aggrs []*compute.AggrObject
	var payloadCols []int
	for _, text := range texts {
		name, arg, err := parseAggregate(text)
		if err != nil {
			return nil, nil, err
		}
		var args []common.LType
		if arg != "" {
			idx, err := columnIndex(names, arg)
			if err != nil {
				return nil, nil, fmt.Errorf("aggregate %s: %w", text, err)
			}
			args = append(args, types[idx])
			payloadCols = append(payloadCols, idx)
		}
		fun, err := compute.GetAggrFunc(name, args)
		if err != nil {
			return nil, nil, err
		}
		aggrs = append(aggrs, compute.NewAggrObject(fun))
	}
	return aggrs, payloadCols, nil
}

func runAggregate(ctx context.Context, cfg *util.Config, out io.Writer) error {
	columns, err := sourceColumns(cfg.Input.Columns)
	if err != nil {
		return err
	}
	if len(cfg.Input.GroupBy) == 0 {
		return fmt.Errorf("no group by columns")
	}
	src, err := compute.NewSource(
		cfg.Input.Format,
		cfg.Input.Path,
		columns,
		cfg.Input.Delimiter,
		cfg.Input.HasHeader)
	if err != nil {
		return err
	}
	defer src.Close()

	names := src.Names()
	var groupCols []int
	for _, name := range cfg.Input.GroupBy {
		idx, err := columnIndex(names, name)
		if err != nil {
			return fmt.Errorf("group by: %w", err)
		}
		groupCols = append(groupCols, idx)
	}
	aggrs, payloadCols, err := bindAggregates(cfg.Input.Aggregates, names, src.Types())
	if err != nil {
		return err
	}

	pa, err := compute.NewParallelAggregator(
		src.Types(),
		groupCols,
		payloadCols,
		aggrs,
		compute.ParallelOptions{
			Workers:         cfg.Aggregate.Workers,
			RadixBits:       cfg.Aggregate.RadixBits,
			InitialCapacity: cfg.Aggregate.InitialCapacity,
			Verify:          cfg.Debug.Verify,
		},
		storage.NewBufferManager(cfg.Memory.Limit))
	if err != nil {
		return err
	}

	start := time.Now()
	tables, err := pa.Run(ctx, src.Next)
	if err != nil {
		return err
	}
	defer func() {
		for _, table := range tables {
			table.Close()
		}
	}()
	if cfg.Debug.PrintLayout && len(tables) != 0 {
		fmt.Fprintln(os.Stderr, tables[0].Layout().Tree().String())
	}

	sorted := compute.NewSortedResult(pa.ResultTypes(), len(groupCols), compute.SortOptions{
		Desc:       cfg.Sort.Desc,
		NullsFirst: cfg.Sort.NullsFirst,
		PrefixLen:  cfg.Sort.PrefixLen,
	})
	err = compute.ScanTables(tables, pa.ResultTypes(), func(result *chunk.Chunk) error {
		sorted.Add(result)
		return nil
	})
	if err != nil {
		return err
	}
	util.Info("aggregate done",
		zap.String("input", cfg.Input.Path),
		zap.Int("groups", sorted.Len()),
		zap.Int("tables", len(tables)),
		zap.Duration("elapsed", time.Since(start)))

	header := make([]string, 0, len(groupCols)+len(aggrs))
	for _, idx := range groupCols {
		header = append(header, names[idx])
	}
	header = append(header, cfg.Input.Aggregates...)
	_, err = fmt.Fprintln(out, strings.Join(header, "\t"))
	if err != nil {
		return err
	}
	if cfg.Debug.MaxRows <= 0 {
		_, err = sorted.WriteTo(out)
		return err
	}
	return writeRows(out, sorted, cfg.Debug.MaxRows)
}

func writeRows(out io.Writer, sorted *compute.SortedResult, maxRows int) error {
	var err error
	rows := 0
	fields := make([]string, 0)
	sorted.Scan(func(values []*chunk.Value) bool {
		fields = fields[:0]
		for _, val := range values {
			fields = append(fields, val.String())
		}
		_, err = fmt.Fprintln(out, strings.Join(fields, "\t"))
		rows++
		return err == nil && rows < maxRows
	})
	return err
}
