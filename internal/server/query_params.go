package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/computeledger/pkg/db/pagination"
)

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 {
		return 0, errors.New("invalid_int")
	}
	return parsed, nil
}

func parsePage(c *gin.Context) (pagination.Page, error) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		return pagination.Page{}, newValidationError("limit", "invalid_limit", "invalid limit")
	}
	offset, err := parseOptionalInt(c.Query("offset"))
	if err != nil {
		return pagination.Page{}, newValidationError("offset", "invalid_offset", "invalid offset")
	}
	return pagination.Page{Limit: limit, Offset: offset}.Normalize(), nil
}

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || parsed <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return parsed, nil
}

func tenantParam(c *gin.Context) (string, error) {
	tenantID := strings.TrimSpace(c.Param("tenant"))
	if tenantID == "" {
		return "", newValidationError("tenant", "invalid_tenant", "invalid tenant")
	}
	return tenantID, nil
}
