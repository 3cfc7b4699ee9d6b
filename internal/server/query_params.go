package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/pkg/validation"
)

func parseID(field, raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		verrs := &validation.Errors{}
		verrs.Add(field, "must be a valid id")
		return 0, verrs
	}
	return id, nil
}

func parseOptionalID(field, raw string) (snowflake.ID, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return parseID(field, raw)
}
