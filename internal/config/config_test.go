// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers YAML parsing, env expansion, defaults, and missing-var reporting

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalYAML = `
copilot:
  environment_id: "11112222-3333-4444-5555-666677778888"
  agent_identifier: "my-agent"
azure:
  tenant_id: "tenant-1"
  client_id: "client-1"
  client_secret: "secret-1"
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "11112222-3333-4444-5555-666677778888", cfg.Copilot.EnvironmentID)
	assert.Equal(t, "my-agent", cfg.Copilot.AgentIdentifier)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.HTTPAddr)
	assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
	assert.Equal(t, DefaultConnectTimeout, cfg.Copilot.ConnectTimeout)
	assert.Equal(t, DefaultResponseTimeout, cfg.Copilot.ResponseTimeout)
	assert.Equal(t, DefaultSessionTTL, cfg.Session.TTL)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)
}

func TestLoadDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML+`
session:
  ttl: "2h"
`))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
}

func TestLoadTimeoutOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
copilot:
  environment_id: "env-1"
  agent_identifier: "my-agent"
  connect_timeout: "10s"
  response_timeout: "1m"
azure:
  tenant_id: "tenant-1"
  client_id: "client-1"
  client_secret: "secret-1"
`))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Copilot.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.Copilot.ResponseTimeout)
}

func TestLoadBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
session:
  ttl: "not-a-duration"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing session ttl")
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_AGENT_ID", "expanded-agent")
	cfg, err := Load(writeConfig(t, `
copilot:
  environment_id: "env-1"
  agent_identifier: "${TEST_AGENT_ID}"
azure:
  tenant_id: "tenant-1"
  client_id: "client-1"
  client_secret: "secret-1"
`))
	require.NoError(t, err)
	assert.Equal(t, "expanded-agent", cfg.Copilot.AgentIdentifier)
}

func TestValidateReportsAllMissing(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  http_addr: ":9090"
`))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "copilot.environment_id")
	assert.Contains(t, msg, "copilot.agent_identifier")
	assert.Contains(t, msg, "azure.tenant_id")
	assert.Contains(t, msg, "azure.client_id")
	assert.Contains(t, msg, "azure.client_secret")
}

func TestTailscaleRequiresHostname(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
tailscale:
  enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tailscale.hostname")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("COPILOT_ENVIRONMENT_ID", "env-guid")
	t.Setenv("COPILOT_AGENT_IDENTIFIER", "agent-1")
	t.Setenv("AZURE_TENANT_ID", "tenant-1")
	t.Setenv("AZURE_APP_CLIENT_ID", "client-1")
	t.Setenv("AZURE_APP_CLIENT_SECRET", "secret-1")
	t.Setenv("COPILOT_CHAT_HTTP_ADDR", ":3000")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-guid", cfg.Copilot.EnvironmentID)
	assert.Equal(t, ":3000", cfg.Server.HTTPAddr)
	assert.Equal(t, "http://localhost:3000", cfg.Server.BaseURL)
}

func TestFromEnvListsEveryMissingVar(t *testing.T) {
	for _, v := range []string{
		"COPILOT_ENVIRONMENT_ID", "COPILOT_AGENT_IDENTIFIER",
		"AZURE_TENANT_ID", "AZURE_APP_CLIENT_ID", "AZURE_APP_CLIENT_SECRET",
	} {
		t.Setenv(v, "")
	}

	_, err := FromEnv()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "COPILOT_ENVIRONMENT_ID: Copilot Studio environment ID")
	assert.Contains(t, msg, "COPILOT_AGENT_IDENTIFIER: Copilot Studio agent identifier")
	assert.Contains(t, msg, "AZURE_TENANT_ID: Azure tenant ID")
	assert.Contains(t, msg, "AZURE_APP_CLIENT_ID: Azure app client ID")
	assert.Contains(t, msg, "AZURE_APP_CLIENT_SECRET: Azure app client secret")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}
