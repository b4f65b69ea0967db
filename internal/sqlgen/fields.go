package sqlgen

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/SrinivasPT/control-testing/internal/rule"
)

// stripQualifier drops any "dataset_alias." prefix from a field name.
// Qualification exists only to disambiguate authoring after a join; once the
// stage chain is built, columns are addressed by bare name.
func stripQualifier(field string) string {
	if idx := strings.LastIndex(field, "."); idx >= 0 {
		return field[idx+1:]
	}
	return field
}

// opSQL maps DSL operators to SQL operators. Only operators that survived
// rule validation reach this table.
var opSQL = map[rule.Op]string{
	rule.OpEq:    "=",
	rule.OpNeq:   "!=",
	rule.OpGt:    ">",
	rule.OpLt:    "<",
	rule.OpGte:   ">=",
	rule.OpLte:   "<=",
	rule.OpIn:    "IN",
	rule.OpNotIn: "NOT IN",
}

func sqlOp(op rule.Op) (string, error) {
	s, ok := opSQL[op]
	if !ok {
		return "", invariant("operator %q has no SQL mapping", op)
	}
	return s, nil
}

// quoteLiteral renders a scalar literal as a SQL token. Strings are NFC
// normalized before quoting so equivalent Unicode inputs compile to
// byte-identical SQL, and single quotes are doubled.
func quoteLiteral(l rule.Literal) (string, error) {
	switch val := l.(type) {
	case rule.String:
		normalized := norm.NFC.String(string(val))
		return "'" + strings.ReplaceAll(normalized, "'", "''") + "'", nil
	case rule.Number:
		return rule.FormatNumber(val), nil
	case rule.Bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case rule.Time:
		return "'" + time.Time(val).Format("2006-01-02T15:04:05") + "'", nil
	case rule.Null:
		return "NULL", nil
	case rule.List:
		return "", invariant("list literal cannot be quoted as a scalar")
	case nil:
		return "", invariant("missing literal")
	default:
		return "", invariant("unsupported literal type %T", l)
	}
}

// quoteList renders a literal list as a parenthesized SQL value list.
func quoteList(list rule.List) (string, error) {
	parts := make([]string, 0, len(list))
	for _, item := range list {
		quoted, err := quoteLiteral(item)
		if err != nil {
			return "", err
		}
		parts = append(parts, quoted)
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

// readSource renders the scan expression for a columnar evidence file.
func readSource(path string) string {
	return fmt.Sprintf("read_parquet('%s')", strings.ReplaceAll(path, "'", "''"))
}
