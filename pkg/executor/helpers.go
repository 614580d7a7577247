package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bobboyms/reldb/pkg/errors"
	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/storage"
)

// dieError turns a Die verdict into the ProtocolError the errors package
// documents as always driving a full abort, naming the variant currently
// backing cc so a log line or client message doesn't have to re-derive it.
func dieError(cc CCManager, table, rowKey string, mode lock.Mode) error {
	return &errors.ProtocolError{
		Variant: cc.CurrentVariant().String(),
		Reason:  fmt.Sprintf("validate(%s, %s, %v) => die", table, rowKey, mode),
	}
}

// rowKeyOf derives the row_key validate() is called with. A declared
// primary key gives a stable identity across a row's update history; a
// table with no primary key falls back to a content hash of its current
// values, which is only stable until the row itself changes — row-
// granularity CC variants (TSO/OCC/MVCC) lose precise identity tracking
// across an update on such a table. Wait-Die ignores row_key entirely, so
// this limitation is scoped to the other three variants.
func rowKeyOf(schema storage.Schema, row storage.Row) string {
	if pk, ok := schema.PrimaryKey(); ok {
		v, _ := row.Get(pk.Name)
		return v.String()
	}
	return contentKey(row)
}

func contentKey(row storage.Row) string {
	parts := make([]string, 0, len(row))
	for _, f := range row {
		v, _ := row.Get(f.Key)
		parts = append(parts, f.Key+"="+v.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
