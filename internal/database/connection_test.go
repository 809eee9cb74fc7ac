package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolFromURL_InvalidURL(t *testing.T) {
	_, err := NewPoolFromURL(context.Background(), "://not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse database config")
}

func TestNewPool_InvalidConfig(t *testing.T) {
	_, err := NewPool(context.Background(), Config{
		Host:     "host with spaces",
		Port:     5432,
		User:     "docpipe",
		Password: "docpipe",
		Database: "docpipe",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse database config")
}
