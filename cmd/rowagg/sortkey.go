package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"unsafe"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/compute"
)

//sortkey cmd

var sortKeyInfo = "print the sortable encoding of values in key order"
var sortKeyCmd = &cobra.Command{
	Use:   "sortkey [values...]",
	Short: sortKeyInfo,
	Long:  sortKeyInfo + ". NULL or an empty argument is NULL.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := common.ParseLType(viper.GetString("sortkey.type"))
		if err != nil {
			return err
		}
		return printSortKeys(os.Stdout, typ, args, compute.SortOptions{
			Desc:       viper.GetBool("sortkey.desc"),
			NullsFirst: viper.GetBool("sortkey.nullsFirst"),
			PrefixLen:  viper.GetInt("sortkey.prefixLen"),
		})
	},
}

func initSortKeyCmd() {
	RootCmd.AddCommand(sortKeyCmd)
	flags := sortKeyCmd.Flags()
	flags.String("type", "bigint", "value type")
	flags.Bool("desc", false, "descending")
	flags.Bool("nulls_first", true, "NULL sorts first")
	flags.Int("prefix_len", 12, "varchar prefix length")

	viper.BindPFlag("sortkey.type", flags.Lookup("type"))
	viper.BindPFlag("sortkey.desc", flags.Lookup("desc"))
	viper.BindPFlag("sortkey.nullsFirst", flags.Lookup("nulls_first"))
	viper.BindPFlag("sortkey.prefixLen", flags.Lookup("prefix_len"))
}

// printSortKeys writes one "value<TAB>key" line per argument, ordered by
// key.
func printSortKeys(out io.Writer, typ common.LType, args []string, opts compute.SortOptions) error {
	types := []common.LType{typ, common.VarcharType()}
	data := chunk.NewChunk(types, len(args))
	for i, arg := range args {
		var val *chunk.Value
		var err error
		if strings.EqualFold(arg, "null") {
			val = chunk.NullValue(typ)
		} else {
			val, err = compute.ParseValue(arg, typ)
			if err != nil {
				return fmt.Errorf("value %q: %w", arg, err)
			}
		}
		data.SetValue(0, i, val)
	}
	data.SetCard(len(args))

	width := 1 + compute.SortableWidth(typ, opts.PrefixLen)
	keys := make([]byte, len(args)*width)
	keyLocs := make([]unsafe.Pointer, len(args))
	for i := range args {
		keyLocs[i] = unsafe.Pointer(&keys[i*width])
	}
	compute.SerializeVectorSortable(
		data.Data[0],
		len(args),
		nil,
		len(args),
		keyLocs,
		opts.Desc,
		true,
		opts.NullsFirst,
		opts.PrefixLen)
	for i := range args {
		data.SetValue(1, i, chunk.VarcharValue(hex.EncodeToString(keys[i*width:(i+1)*width])))
	}

	sorted := compute.NewSortedResult(types, 1, opts)
	sorted.Add(data)
	_, err := sorted.WriteTo(out)
	return err
}
