package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/compute"
	"github.com/daviszhen/rowagg/pkg/util"
)

func TestParseAggregate(t *testing.T) {
	name, arg, err := parseAggregate(" SUM( price ) ")
	require.NoError(t, err)
	assert.Equal(t, "sum", name)
	assert.Equal(t, "price", arg)

	name, arg, err = parseAggregate("count(*)")
	require.NoError(t, err)
	assert.Equal(t, "count", name)
	assert.Empty(t, arg)

	_, arg, err = parseAggregate("avg(decimal(10,2))")
	require.NoError(t, err)
	assert.Equal(t, "decimal(10,2)", arg)

	for _, bad := range []string{"sum", "(x)", "sum(x"} {
		_, _, err = parseAggregate(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseColumnsFlag(t *testing.T) {
	cols, err := parseColumnsFlag("region:varchar; price : decimal(10,2);")
	require.NoError(t, err)
	assert.Equal(t, []util.ColumnOption{
		{Name: "region", Type: "varchar"},
		{Name: "price", Type: "decimal(10,2)"},
	}, cols)

	_, err = parseColumnsFlag("region")
	assert.Error(t, err)
}

func TestPrintLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printLayout(&buf, "integer;varchar", "sum(bigint);count(*)"))
	assert.Contains(t, buf.String(), "hash")
	assert.Contains(t, buf.String(), "count_star")

	assert.Error(t, printLayout(&buf, "", "count(*)"))
	assert.Error(t, printLayout(&buf, "integer", "sum(varchar)"))
}

func TestPrintSortKeys(t *testing.T) {
	var buf bytes.Buffer
	err := printSortKeys(&buf, common.IntegerType(), []string{"3", "null", "-1"},
		compute.SortOptions{NullsFirst: false})
	require.NoError(t, err)
	assert.Equal(t,
		"-1\t007fffffff\n"+
			"3\t0080000003\n"+
			"NULL\t0100000000\n",
		buf.String())

	assert.Error(t, printSortKeys(&buf, common.IntegerType(), []string{"x"}, compute.SortOptions{}))
}

func TestRunAggregate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"region,qty,price\n"+
			"east,3,1.50\n"+
			"west,1,2.00\n"+
			"east,2,0.25\n"+
			",5,1.00\n"), 0644))

	cfg := util.DefaultConfig()
	cfg.Input.Path = path
	cfg.Input.Columns = []util.ColumnOption{
		{Name: "region", Type: "varchar"},
		{Name: "qty", Type: "bigint"},
		{Name: "price", Type: "decimal(10,2)"},
	}
	cfg.Input.GroupBy = []string{"region"}
	cfg.Input.Aggregates = []string{"sum(qty)", "avg(price)", "count(*)"}
	cfg.Aggregate.Workers = 2
	cfg.Aggregate.RadixBits = 1
	cfg.Debug.Verify = true

	var buf bytes.Buffer
	require.NoError(t, runAggregate(context.Background(), cfg, &buf))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"region\tsum(qty)\tavg(price)\tcount(*)",
		"\t5\t1.00\t1",
		"east\t5\t0.88\t2",
		"west\t1\t2.00\t1",
	}, lines)

	cfg.Sort.Desc = true
	cfg.Debug.MaxRows = 1
	buf.Reset()
	require.NoError(t, runAggregate(context.Background(), cfg, &buf))
	assert.Equal(t, "region\tsum(qty)\tavg(price)\tcount(*)\nwest\t1\t2.00\t1\n", buf.String())

	cfg.Input.Aggregates = []string{"sum(nope)"}
	assert.ErrorContains(t, runAggregate(context.Background(), cfg, &buf), "no such column nope")
}
