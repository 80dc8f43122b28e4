package sqlutil

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Helpers for the nullable columns of the auction tables

// ToNullUUID converts a Go UUID pointer to uuid.NullUUID
func ToNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{Valid: false}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// FromNullUUID converts uuid.NullUUID to Go UUID pointer
func FromNullUUID(val uuid.NullUUID) *uuid.UUID {
	if !val.Valid {
		return nil
	}
	return &val.UUID
}

// FromNullText parses a UUID held in a nullable TEXT column
func FromNullText(val sql.NullString) (*uuid.UUID, error) {
	if !val.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(val.String)
	if err != nil {
		return nil, fmt.Errorf("bad uuid %q: %w", val.String, err)
	}
	return &id, nil
}

// ToNullJSON stores raw JSON in a nullable TEXT column; empty means NULL
func ToNullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// FromNullJSON is the inverse of ToNullJSON
func FromNullJSON(val sql.NullString) json.RawMessage {
	if !val.Valid {
		return nil
	}
	return json.RawMessage(val.String)
}
