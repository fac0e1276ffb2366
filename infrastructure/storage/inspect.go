package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// RowMapper renders the badger entries written by TableStore and Preferences
// for the debug inspector.
func RowMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	parts := strings.SplitN(key, ":", 3)
	switch {
	case len(parts) == 3 && parts[0] == "row":
		row.Type = strings.ToUpper(parts[1])
		decoded, err := decodeRow(val)
		if err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		data, err := json.Marshal(decoded)
		if err != nil {
			row.Detail = fmt.Sprintf("%v", decoded)
			return row
		}
		row.Detail = string(data)
	case parts[0] == "pref":
		row.Type = "PREF"
		row.Detail = string(val)
	}
	return row
}
