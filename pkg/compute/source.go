package compute

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	pqLocal "github.com/xitongsys/parquet-go-source/local"
	pqReader "github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

// ChunkSource produces typed batches of input rows.
type ChunkSource interface {
	Types() []common.LType
	Names() []string
	// Next fills output with up to output.Cap() rows. It returns false
	// once the input is exhausted.
	Next(output *chunk.Chunk) (bool, error)
	Close() error
}

type SourceColumn struct {
	Name string
	Typ  common.LType
}

// NewSource opens path in format "csv" or "parquet".
func NewSource(
	format string,
	path string,
	columns []SourceColumn,
	delimiter string,
	hasHeader bool,
) (ChunkSource, error) {
	switch format {
	case "csv":
		return NewCSVSource(path, columns, delimiter, hasHeader)
	case "parquet":
		return NewParquetSource(path, columns)
	default:
		return nil, fmt.Errorf("usp input format %q", format)
	}
}

func columnTypes(columns []SourceColumn) []common.LType {
	ret := make([]common.LType, len(columns))
	for i, col := range columns {
		ret[i] = col.Typ
	}
	return ret
}

func columnNames(columns []SourceColumn) []string {
	ret := make([]string, len(columns))
	for i, col := range columns {
		ret[i] = col.Name
	}
	return ret
}

// CSVSource reads delimited text. Empty fields are NULL.
type CSVSource struct {
	_columns []SourceColumn
	_file    *os.File
	_reader  *csv.Reader
	_rows    int
}

func NewCSVSource(
	path string,
	columns []SourceColumn,
	delimiter string,
	hasHeader bool,
) (*CSVSource, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("csv source %s has no columns", path)
	}
	file, err := os.OpenFile(path, os.O_RDONLY, 0755)
	if err != nil {
		return nil, err
	}
	ret := &CSVSource{
		_columns: columns,
		_file:    file,
		_reader:  csv.NewReader(file),
	}
	if delimiter != "" {
		ret._reader.Comma = []rune(delimiter)[0]
	}
	ret._reader.FieldsPerRecord = -1
	if hasHeader {
		if _, err = ret._reader.Read(); err != nil && !errors.Is(err, io.EOF) {
			_ = file.Close()
			return nil, err
		}
	}
	return ret, nil
}

func (src *CSVSource) Types() []common.LType {
	return columnTypes(src._columns)
}

func (src *CSVSource) Names() []string {
	return columnNames(src._columns)
}

func (src *CSVSource) Next(output *chunk.Chunk) (bool, error) {
	rowCont := 0
	for rowCont < output.Cap() {
		line, err := src._reader.Read()
		if err != nil {
			//EOF
			if errors.Is(err, io.EOF) {
				break
			}
			return false, err
		}
		src._rows++
		if len(line) < len(src._columns) {
			return false, fmt.Errorf("line %d: %d fields, want %d",
				src._rows, len(line), len(src._columns))
		}
		for j, col := range src._columns {
			val, err := ParseValue(line[j], col.Typ)
			if err != nil {
				return false, fmt.Errorf("line %d column %s: %w", src._rows, col.Name, err)
			}
			output.Data[j].SetValue(rowCont, val)
		}
		rowCont++
	}
	output.SetCard(rowCont)
	return rowCont > 0, nil
}

func (src *CSVSource) Close() error {
	return src._file.Close()
}

// ParseValue converts a text field into a value of lTyp. An empty field
// is NULL unless lTyp is VARCHAR.
func ParseValue(field string, lTyp common.LType) (*chunk.Value, error) {
	var err error
	val := &chunk.Value{
		Typ: lTyp,
	}
	if field == "" && lTyp.Id != common.LTID_VARCHAR {
		val.IsNull = true
		return val, nil
	}
	switch lTyp.Id {
	case common.LTID_BOOLEAN:
		val.Bool, err = strconv.ParseBool(field)
	case common.LTID_TINYINT:
		val.I64, err = strconv.ParseInt(field, 10, 8)
	case common.LTID_SMALLINT:
		val.I64, err = strconv.ParseInt(field, 10, 16)
	case common.LTID_INTEGER:
		val.I64, err = strconv.ParseInt(field, 10, 32)
	case common.LTID_BIGINT:
		val.I64, err = strconv.ParseInt(field, 10, 64)
	case common.LTID_UTINYINT:
		val.U64, err = strconv.ParseUint(field, 10, 8)
	case common.LTID_USMALLINT:
		val.U64, err = strconv.ParseUint(field, 10, 16)
	case common.LTID_UINTEGER:
		val.U64, err = strconv.ParseUint(field, 10, 32)
	case common.LTID_UBIGINT:
		val.U64, err = strconv.ParseUint(field, 10, 64)
	case common.LTID_HUGEINT:
		var i64 int64
		i64, err = strconv.ParseInt(field, 10, 64)
		val.I128 = common.HugeintFromInt64(i64)
	case common.LTID_FLOAT:
		val.F64, err = strconv.ParseFloat(field, 32)
	case common.LTID_DOUBLE:
		val.F64, err = strconv.ParseFloat(field, 64)
	case common.LTID_DECIMAL:
		val.I64, err = common.ParseDecimal(strings.TrimSpace(field), lTyp.Scale)
	case common.LTID_VARCHAR:
		val.Str = field
	default:
		return nil, fmt.Errorf("usp csv type %v", lTyp)
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// ParquetSource reads the named columns of a local parquet file, in file
// column order.
type ParquetSource struct {
	_columns  []SourceColumn
	_colIdx   []int64
	_file     source.ParquetFile
	_reader   *pqReader.ParquetReader
	_total    int64
	_consumed int64
}

func NewParquetSource(path string, columns []SourceColumn) (*ParquetSource, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("parquet source %s has no columns", path)
	}
	file, err := pqLocal.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	reader, err := pqReader.NewParquetColumnReader(file, 1)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	ret := &ParquetSource{
		_columns: columns,
		_file:    file,
		_reader:  reader,
		_total:   reader.GetNumRows(),
	}
	schema := reader.SchemaHandler
	for _, col := range columns {
		idx := int64(-1)
		for i, name := range schema.ValueColumns {
			leaf := util.Back(strings.Split(name, "\x01"))
			if strings.EqualFold(leaf, col.Name) {
				idx = int64(i)
				break
			}
		}
		if idx < 0 {
			ret.Close()
			return nil, fmt.Errorf("no such column %s in %s", col.Name, path)
		}
		ret._colIdx = append(ret._colIdx, idx)
	}
	return ret, nil
}

func (src *ParquetSource) Types() []common.LType {
	return columnTypes(src._columns)
}

func (src *ParquetSource) Names() []string {
	return columnNames(src._columns)
}

func (src *ParquetSource) Next(output *chunk.Chunk) (bool, error) {
	maxCnt := min(int64(output.Cap()), src._total-src._consumed)
	if maxCnt <= 0 {
		output.SetCard(0)
		return false, nil
	}
	rowCont := -1
	for j, idx := range src._colIdx {
		values, _, _, err := src._reader.ReadColumnByIndex(idx, maxCnt)
		if err != nil {
			//EOF
			if errors.Is(err, io.EOF) {
				break
			}
			return false, err
		}
		if rowCont < 0 {
			rowCont = len(values)
		} else if len(values) != rowCont {
			return false, fmt.Errorf("column %d has %d values, previous columns %d",
				idx, len(values), rowCont)
		}
		vec := output.Data[j]
		for i := 0; i < len(values); i++ {
			val, err := parquetColToValue(values[i], vec.Typ())
			if err != nil {
				return false, fmt.Errorf("column %s: %w", src._columns[j].Name, err)
			}
			vec.SetValue(i, val)
		}
	}
	rowCont = max(rowCont, 0)
	src._consumed += int64(rowCont)
	output.SetCard(rowCont)
	return rowCont > 0, nil
}

func (src *ParquetSource) Close() error {
	src._reader.ReadStop()
	return src._file.Close()
}

func parquetColToValue(field any, lTyp common.LType) (*chunk.Value, error) {
	val := &chunk.Value{
		Typ: lTyp,
	}
	if field == nil {
		val.IsNull = true
		return val, nil
	}
	switch lTyp.Id {
	case common.LTID_BOOLEAN:
		b, ok := field.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", field)
		}
		val.Bool = b
	case common.LTID_TINYINT, common.LTID_SMALLINT,
		common.LTID_INTEGER, common.LTID_BIGINT,
		common.LTID_DECIMAL:
		switch fVal := field.(type) {
		case int32:
			val.I64 = int64(fVal)
		case int64:
			val.I64 = fVal
		default:
			return nil, fmt.Errorf("want integer, got %T", field)
		}
	case common.LTID_UTINYINT, common.LTID_USMALLINT,
		common.LTID_UINTEGER, common.LTID_UBIGINT:
		switch fVal := field.(type) {
		case int32:
			val.U64 = uint64(uint32(fVal))
		case int64:
			val.U64 = uint64(fVal)
		default:
			return nil, fmt.Errorf("want integer, got %T", field)
		}
	case common.LTID_HUGEINT:
		switch fVal := field.(type) {
		case int32:
			val.I128 = common.HugeintFromInt64(int64(fVal))
		case int64:
			val.I128 = common.HugeintFromInt64(fVal)
		default:
			return nil, fmt.Errorf("want integer, got %T", field)
		}
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		switch fVal := field.(type) {
		case float32:
			val.F64 = float64(fVal)
		case float64:
			val.F64 = fVal
		default:
			return nil, fmt.Errorf("want float, got %T", field)
		}
	case common.LTID_VARCHAR:
		s, ok := field.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", field)
		}
		val.Str = s
	default:
		return nil, fmt.Errorf("usp parquet type %v", lTyp)
	}
	return val, nil
}

// ReadAll drains src through fn with chunks of at most cap rows.
func ReadAll(src ChunkSource, cap int, fn func(*chunk.Chunk) error) error {
	if cap <= 0 {
		cap = util.DefaultVectorSize
	}
	for {
		output := chunk.NewChunk(src.Types(), cap)
		ok, err := src.Next(output)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		err = fn(output)
		if err != nil {
			return err
		}
	}
}
