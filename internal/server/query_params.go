package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func parseSnowflakeID(value, field string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, newValidationError(field, "invalid_"+field, "invalid id")
	}
	return parsed, nil
}

func projectIDParam(c *gin.Context) (snowflake.ID, error) {
	return parseSnowflakeID(c.Param("id"), "project_id")
}

func parseLimit(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultListLimit, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed <= 0 {
		return 0, newValidationError("limit", "invalid_limit", "limit must be a positive integer")
	}
	return min(parsed, maxListLimit), nil
}

func parseWindow(value string, def time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(trimmed)
	if err != nil || parsed <= 0 {
		return 0, newValidationError("window", "invalid_window", "window must be a positive duration")
	}
	return parsed, nil
}
