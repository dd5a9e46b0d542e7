package compute

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pqLocal "github.com/xitongsys/parquet-go-source/local"
	pqWriter "github.com/xitongsys/parquet-go/writer"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readAllRows(t *testing.T, src ChunkSource, cap int) [][]*chunk.Value {
	var rows [][]*chunk.Value
	err := ReadAll(src, cap, func(data *chunk.Chunk) error {
		assert.LessOrEqual(t, data.Card(), cap)
		for i := 0; i < data.Card(); i++ {
			row := make([]*chunk.Value, data.ColumnCount())
			for j := range row {
				row[j] = data.GetValue(j, i)
			}
			rows = append(rows, row)
		}
		return nil
	})
	require.NoError(t, err)
	return rows
}

func TestCSVSource(t *testing.T) {
	decTyp := common.DecimalType(10, 2)
	path := writeFile(t, "orders.csv",
		"region|qty|price|ok\n"+
			"east|3|1.25|true\n"+
			"west||2.5|false\n"+
			"|7|-0.10|true\n")
	columns := []SourceColumn{
		{Name: "region", Typ: common.VarcharType()},
		{Name: "qty", Typ: common.IntegerType()},
		{Name: "price", Typ: decTyp},
		{Name: "ok", Typ: common.BooleanType()},
	}
	src, err := NewSource("csv", path, columns, "|", true)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, []string{"region", "qty", "price", "ok"}, src.Names())
	require.Len(t, src.Types(), 4)

	rows := readAllRows(t, src, 2)
	require.Len(t, rows, 3)
	assert.Equal(t, "east", rows[0][0].Str)
	assert.Equal(t, int64(3), rows[0][1].I64)
	assert.Equal(t, int64(125), rows[0][2].I64)
	assert.True(t, rows[0][3].Bool)
	assert.True(t, rows[1][1].IsNull, "empty integer field is NULL")
	assert.Equal(t, int64(250), rows[1][2].I64)
	assert.False(t, rows[2][0].IsNull, "empty varchar field is the empty string")
	assert.Equal(t, "", rows[2][0].Str)
	assert.Equal(t, int64(-10), rows[2][2].I64)
}

func TestCSVSourceErrors(t *testing.T) {
	columns := []SourceColumn{
		{Name: "a", Typ: common.BigintType()},
		{Name: "b", Typ: common.BigintType()},
	}
	_, err := NewSource("csv", filepath.Join(t.TempDir(), "missing.csv"), columns, ",", false)
	assert.Error(t, err)

	_, err = NewSource("orc", "x", columns, ",", false)
	assert.ErrorContains(t, err, "orc")

	_, err = NewCSVSource("x", nil, ",", false)
	assert.ErrorContains(t, err, "no columns")

	short, err := NewCSVSource(writeFile(t, "short.csv", "1,2\n3\n"), columns, ",", false)
	require.NoError(t, err)
	defer short.Close()
	_, err = short.Next(chunk.NewChunk(short.Types(), 16))
	assert.ErrorContains(t, err, "line 2")

	bad, err := NewCSVSource(writeFile(t, "bad.csv", "1,x\n"), columns, ",", false)
	require.NoError(t, err)
	defer bad.Close()
	_, err = bad.Next(chunk.NewChunk(bad.Types(), 16))
	assert.ErrorContains(t, err, "column b")
}

func TestParseValue(t *testing.T) {
	val, err := ParseValue("18446744073709551615", common.UbigintType())
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), val.U64)

	val, err = ParseValue("-12", common.HugeintType())
	require.NoError(t, err)
	assert.Equal(t, common.HugeintFromInt64(-12), val.I128)

	val, err = ParseValue("1e3", common.DoubleType())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, val.F64)

	_, err = ParseValue("300", common.TinyintType())
	assert.Error(t, err)

	_, err = ParseValue("1", common.IntervalType())
	assert.Error(t, err)
}

type parquetSale struct {
	Region string   `parquet:"name=region, type=BYTE_ARRAY, convertedtype=UTF8"`
	Qty    int64    `parquet:"name=qty, type=INT64"`
	Price  *float64 `parquet:"name=price, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func writeParquet(t *testing.T, rows []parquetSale) string {
	path := filepath.Join(t.TempDir(), "sales.parquet")
	fw, err := pqLocal.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := pqWriter.NewParquetWriter(fw, new(parquetSale), 1)
	require.NoError(t, err)
	for i := range rows {
		require.NoError(t, pw.Write(rows[i]))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())
	return path
}

func TestParquetSource(t *testing.T) {
	price := 2.5
	path := writeParquet(t, []parquetSale{
		{Region: "east", Qty: 3, Price: &price},
		{Region: "west", Qty: 5},
		{Region: "east", Qty: -1, Price: &price},
	})
	columns := []SourceColumn{
		{Name: "qty", Typ: common.BigintType()},
		{Name: "Region", Typ: common.VarcharType()},
		{Name: "price", Typ: common.DoubleType()},
	}
	src, err := NewSource("parquet", path, columns, "", false)
	require.NoError(t, err)
	defer src.Close()

	rows := readAllRows(t, src, 2)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows[0][0].I64)
	assert.Equal(t, "east", rows[0][1].Str)
	assert.Equal(t, 2.5, rows[0][2].F64)
	assert.True(t, rows[1][2].IsNull)
	assert.Equal(t, "west", rows[1][1].Str)
	assert.Equal(t, int64(-1), rows[2][0].I64)
}

func TestParquetSourceErrors(t *testing.T) {
	_, err := NewParquetSource(filepath.Join(t.TempDir(), "missing.parquet"),
		[]SourceColumn{{Name: "a", Typ: common.BigintType()}})
	assert.Error(t, err)

	path := writeParquet(t, []parquetSale{{Region: "x", Qty: 1}})
	_, err = NewParquetSource(path, []SourceColumn{{Name: "nope", Typ: common.BigintType()}})
	assert.ErrorContains(t, err, "no such column nope")

	_, err = parquetColToValue("x", common.BigintType())
	assert.ErrorContains(t, err, "want integer")
	val, err := parquetColToValue(nil, common.VarcharType())
	require.NoError(t, err)
	assert.True(t, val.IsNull)
}
