package models

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/mmdatafocus/invoicing_backend/utils"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type PageInfo struct {
	EndCursor   string `json:"endCursor"`
	HasNextPage bool   `json:"hasNextPage"`
}

// cursors are opaque to clients: base64("id:<n>")
func EncodeCursor(id int) string {
	return base64.StdEncoding.EncodeToString([]byte("id:" + strconv.Itoa(id)))
}

// DecodeCursor returns 0 for an empty cursor.
func DecodeCursor(cursor *string) (int, error) {
	if cursor == nil || *cursor == "" {
		return 0, nil
	}
	b, err := base64.StdEncoding.DecodeString(*cursor)
	if err != nil {
		return 0, utils.InvalidInput("malformed cursor")
	}
	raw, ok := strings.CutPrefix(string(b), "id:")
	if !ok {
		return 0, utils.InvalidInput("malformed cursor")
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, utils.InvalidInput("malformed cursor")
	}
	return id, nil
}

func normalizePageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
