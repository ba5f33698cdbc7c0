package utils

import (
	"net"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Pointer returns a pointer to the given value.
func Pointer[T any](v T) *T {
	return &v
}

// NormalizeEmail lowercases and trims an address. Every email key in
// the system (contacts, suppressions) is stored in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasMXRecords reports whether the address's domain publishes MX
// records. This is the only deliverability signal the system relies on.
func HasMXRecords(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	mx, err := net.LookupMX(parts[1])
	return err == nil && len(mx) > 0
}

// ParseUint safely parses a string to uint.
func ParseUint(s string) uint {
	i, _ := strconv.ParseUint(s, 10, 32)
	return uint(i)
}

// ErrorResponse creates a standardized error response.
func ErrorResponse(c *fiber.Ctx, status int, message string, err error) error {
	response := fiber.Map{
		"success": false,
		"error":   message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	return c.Status(status).JSON(response)
}

// SuccessResponse creates a standardized success response.
func SuccessResponse(data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    data,
	}
}
