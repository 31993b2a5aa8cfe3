package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	cfg := ClientConfig{Host: "db", Port: 5433, User: "corr", Password: "p@ss", Database: "corrpull", SSLMode: "require"}
	assert.Equal(t, "postgres://corr:p%40ss@db:5433/corrpull?sslmode=require", cfg.DSN())

	cfg = ClientConfig{Host: "localhost", Port: 5432, SSLMode: "disable"}
	assert.Equal(t, "postgres://localhost:5432?sslmode=disable", cfg.DSN())
}
