package aggregate

import (
	"os"
	"testing"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}
