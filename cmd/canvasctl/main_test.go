package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MartinFunctu/lifeos/application/commands"
	"github.com/MartinFunctu/lifeos/infrastructure/config"
	"github.com/MartinFunctu/lifeos/infrastructure/di"
	"github.com/MartinFunctu/lifeos/pkg/auth"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	apiToken, viewPath = "", ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func startAPI(t *testing.T) string {
	t.Helper()
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	container, cleanup, err := di.InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	ctx := auth.WithOwner(context.Background(), "alice")
	_, err = container.CommandBus.Send(ctx, commands.SeedWorkspaceCommand{OwnerID: "alice"})
	require.NoError(t, err)

	srv := httptest.NewServer(container.Router.Setup())
	t.Cleanup(srv.Close)
	return srv.URL + "/api/canvas"
}

func TestToken_IsAcceptedByValidator(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("CONFIG_FILE", "")
	token := strings.TrimSpace(runCLI(t, "token", "--owner", "alice", "--email", "a@example.com"))

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     di.JWTSecret(cfg),
		Issuer:        cfg.JWTIssuer,
		Audience:      []string{di.JWTAudience(cfg)},
	})
	require.NoError(t, err)
	claims, err := validator.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.OwnerID())
}

func TestRemoteCommands(t *testing.T) {
	url := startAPI(t)
	root := commands.RootNodeID("alice")

	child := strings.TrimSpace(runCLI(t, "create", root, "--url", url, "--owner", "alice", "--label", "Inbox"))
	assert.True(t, strings.HasPrefix(child, "node-"))
	other := strings.TrimSpace(runCLI(t, "create", root, "--url", url, "--owner", "alice", "--label", "Later"))
	require.NotEqual(t, child, other)

	tree := runCLI(t, "tree", "--url", url, "--owner", "alice")
	assert.Contains(t, tree, root)
	assert.Contains(t, tree, "  "+child+`  "Inbox"`)

	edge := strings.TrimSpace(runCLI(t, "connect", child, other, "--url", url, "--owner", "alice"))
	runCLI(t, "move", child, "120", "80", "--url", url, "--owner", "alice")

	view := runCLI(t, "view", "--path", root, "--url", url, "--owner", "alice")
	assert.Contains(t, view, `node `+child+`  "Inbox"`)
	assert.Contains(t, view, "edge "+edge)

	runCLI(t, "delete", other, "--url", url, "--owner", "alice")
	view = runCLI(t, "view", "--path", root, "--url", url, "--owner", "alice")
	assert.NotContains(t, view, other)
	assert.NotContains(t, view, "edge ")

	tree = runCLI(t, "tree", "--url", url, "--owner", "alice")
	assert.Contains(t, tree, `(120, 80)`)
}
