package storage

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RowToJSON renders a Row as an extended-JSON string.
func RowToJSON(r Row) (string, error) {
	jsonBytes, err := bson.MarshalExtJSON(bson.D(r), false, false)
	if err != nil {
		return "", fmt.Errorf("row to json: %w", err)
	}
	return string(jsonBytes), nil
}

// JSONToRow parses an extended-JSON object into a Row.
func JSONToRow(jsonStr string) (Row, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON([]byte(jsonStr), true, &d); err != nil {
		return nil, fmt.Errorf("json to row: %w", err)
	}
	return Row(d), nil
}
