package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoelite.com/storefront/internal/config"
)

const seedYAML = `vehicles:
  - brand: Volkswagen
    model: Amarok
    year: 2024
    price: 289900
    fuel: diesel
    transmission: automatic
    color: Preto
  - brand: ""
    model: Sem marca
    year: 2020
    fuel: flex
    transmission: manual
    color: Azul
`

func TestSeedCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "seed.db"))
	t.Setenv("LOG_LEVEL", "error")

	seedPath := filepath.Join(dir, "vehicles.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"seed", "--file", seedPath})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Imported 1 of 2 vehicles")

	a, err := newApp(context.Background(), config.AppConfig, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	vehicles, err := a.vehicles.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "Volkswagen Amarok 2024", vehicles[0].DisplayName())
}

func TestNewAppDegradedAndAdminBootstrap(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		DatabaseDriver: "sqlite3",
		DatabaseURL:    filepath.Join(dir, "app.db"),
		JWTSecret:      "test-secret",
		CacheSize:      16,
		AdminEmail:     "admin@autoelite.com",
		AdminPassword:  "secret123",
	}
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.responder.Degraded())
	require.NoError(t, a.bootstrapAdmin(context.Background()))
	require.NoError(t, a.bootstrapAdmin(context.Background()), "bootstrapping twice keeps the existing account")

	admin, err := a.store.GetUserByEmail(context.Background(), "admin@autoelite.com")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, "admin", string(admin.Role))
}

func TestNewAppGatewayMode(t *testing.T) {
	cfg := config.Config{
		DatabaseDriver:    "sqlite3",
		DatabaseURL:       filepath.Join(t.TempDir(), "app.db"),
		CacheSize:         16,
		CompletionAPIKey:  "key",
		CompletionBaseURL: "http://127.0.0.1:1/v1",
		CompletionModel:   "google/gemini-2.5-flash",
	}
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	assert.False(t, a.responder.Degraded())
}
