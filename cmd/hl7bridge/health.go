package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// checker is a readiness probe for one backend.
type checker interface {
	Name() string
	Check(ctx context.Context) (interface{}, error)
}

func healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func versionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"name": "hl7bridge", "version": version})
}

// readyHandler runs every checker and answers 503 if any of them fails.
func readyHandler(checkers []checker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]interface{}, len(checkers))
		for _, ch := range checkers {
			detail, err := ch.Check(ctx)
			if err != nil {
				status = http.StatusServiceUnavailable
				checks[ch.Name()] = map[string]string{"status": "down", "error": err.Error()}
				continue
			}
			checks[ch.Name()] = map[string]interface{}{"status": "up", "detail": detail}
		}

		overall := "ready"
		if status != http.StatusOK {
			overall = "not_ready"
		}
		return c.JSON(status, map[string]interface{}{"status": overall, "checks": checks})
	}
}
