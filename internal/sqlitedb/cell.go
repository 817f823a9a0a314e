package sqlitedb

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// FormatValue converts one scanned cell to its canonical string form:
//
//	NULL     -> nil (encoded as JSON null)
//	INTEGER  -> base-10 digits
//	REAL     -> shortest round-trip decimal; integral values keep ".0"
//	TEXT     -> unchanged
//	BLOB     -> standard base64
//
// Booleans become "1" or "0", matching how SQLite stores them.
func FormatValue(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = formatFloat(x)
	case string:
		s = x
	case []byte:
		s = base64.StdEncoding.EncodeToString(x)
	case bool:
		s = "0"
		if x {
			s = "1"
		}
	default:
		s = fmt.Sprint(x)
	}
	return &s
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
