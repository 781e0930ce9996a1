package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-council-planner/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "planner",
		Password: "pw",
		Name:     "council_planner",
		SSLMode:  "disable",
	})
	assert.Equal(t, "host=db port=5433 user=planner password=pw dbname=council_planner sslmode=disable", dsn)
}
