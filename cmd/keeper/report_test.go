package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/marketkeeper/internal/adapters/gateway"
	"github.com/alejandrodnm/marketkeeper/internal/adapters/notify"
	"github.com/alejandrodnm/marketkeeper/internal/adapters/storage"
	"github.com/alejandrodnm/marketkeeper/internal/application/resolve"
	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

func TestRunReport_ReturnsErrorInsteadOfExiting(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	var buf bytes.Buffer
	console := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, runReport(context.Background(), store, console, 0))
	assert.Contains(t, buf.String(), "No resolution history yet")

	require.NoError(t, store.Close())
	err = runReport(context.Background(), store, console, 0)
	assert.ErrorContains(t, err, "load history")
}

func TestRunSingle_MarketNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := gateway.NewClient(gateway.Options{BaseURL: srv.URL})
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	engine := resolve.New(resolve.Config{}, domain.CallerIdentity{Address: "GTEST"}, client, client)
	err = runSingle(context.Background(), client, engine, notify.NewMulti(), store, 5)
	assert.ErrorContains(t, err, "market 5 not found")
}
