package api

import "github.com/labstack/echo/v4"

// ErrorSchema is the JSON body returned for every API error.
type ErrorSchema struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Color   string `json:"color"`
}

// errorJSON writes the standard error body with the given status.
func errorJSON(c echo.Context, status int, message string, err error) error {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return c.JSON(status, ErrorSchema{
		Message: message,
		Error:   detail,
		Color:   "red",
	})
}
