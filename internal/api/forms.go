package api

import (
	"strconv"
	"strings"

	"lagerverwaltung/server/internal/services"

	"github.com/gin-gonic/gin"
)

// formInt parses an integer form field; blank fields give def.
func formInt(c *gin.Context, key string, def int) (int, bool) {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, false
	}
	return v, true
}

// optionalFormInt is nil for blank or unparsable input.
func optionalFormInt(c *gin.Context, key string) *int {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

// optionalFormFloat accepts a decimal comma and is nil for blank input.
func optionalFormFloat(c *gin.Context, key string) *float64 {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return nil
	}
	v, err := services.ParseDecimal(raw)
	if err != nil {
		return nil
	}
	return &v
}

func formBool(c *gin.Context, key string) bool {
	switch strings.ToLower(c.PostForm(key)) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}
