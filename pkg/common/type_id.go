package common

import "fmt"

type LTypeId int

const (
	LTID_INVALID   LTypeId = 0
	LTID_NULL      LTypeId = 1
	LTID_UNKNOWN   LTypeId = 2
	LTID_BOOLEAN   LTypeId = 10
	LTID_TINYINT   LTypeId = 11
	LTID_SMALLINT  LTypeId = 12
	LTID_INTEGER   LTypeId = 13
	LTID_BIGINT    LTypeId = 14
	LTID_DECIMAL   LTypeId = 21
	LTID_FLOAT     LTypeId = 22
	LTID_DOUBLE    LTypeId = 23
	LTID_VARCHAR   LTypeId = 25
	LTID_INTERVAL  LTypeId = 27
	LTID_UTINYINT  LTypeId = 28
	LTID_USMALLINT LTypeId = 29
	LTID_UINTEGER  LTypeId = 30
	LTID_UBIGINT   LTypeId = 31
	LTID_BIT       LTypeId = 36
	LTID_HUGEINT   LTypeId = 50
	LTID_POINTER   LTypeId = 51
	LTID_STRUCT    LTypeId = 100
	LTID_LIST      LTypeId = 101
)

var lTypeIdToStr = map[LTypeId]string{
	LTID_INVALID:   "INVALID",
	LTID_NULL:      "NULL",
	LTID_UNKNOWN:   "UNKNOWN",
	LTID_BOOLEAN:   "BOOLEAN",
	LTID_TINYINT:   "TINYINT",
	LTID_SMALLINT:  "SMALLINT",
	LTID_INTEGER:   "INTEGER",
	LTID_BIGINT:    "BIGINT",
	LTID_DECIMAL:   "DECIMAL",
	LTID_FLOAT:     "FLOAT",
	LTID_DOUBLE:    "DOUBLE",
	LTID_VARCHAR:   "VARCHAR",
	LTID_INTERVAL:  "INTERVAL",
	LTID_UTINYINT:  "UTINYINT",
	LTID_USMALLINT: "USMALLINT",
	LTID_UINTEGER:  "UINTEGER",
	LTID_UBIGINT:   "UBIGINT",
	LTID_BIT:       "BIT",
	LTID_HUGEINT:   "HUGEINT",
	LTID_POINTER:   "POINTER",
	LTID_STRUCT:    "STRUCT",
	LTID_LIST:      "LIST",
}

func (id LTypeId) String() string {
	if s, has := lTypeIdToStr[id]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", id))
}
