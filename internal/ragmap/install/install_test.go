package install

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

func TestProjectNpmStdioPackage(t *testing.T) {
	record := types.ServerRecord{
		Name:    "io.example/installable",
		Version: "1.2.3",
		Packages: []types.Package{{
			RegistryType: "npm",
			Identifier:   "@example/installable-mcp",
			Version:      "1.2.3",
			RuntimeHint:  "npx",
			Transport:    &types.Transport{Type: types.TransportStdio},
		}},
	}

	projection := Project(record)

	assert.True(t, projection.Transport.HasStdio)
	assert.False(t, projection.Transport.HasRemote)
	assert.Equal(t, SummaryStdio, projection.Transport.Summary)

	require.NotNil(t, projection.Stdio)
	assert.Equal(t, "npx", projection.Stdio.Command)
	assert.Equal(t, []string{"-y", "@example/installable-mcp@1.2.3"}, projection.Stdio.Args)

	require.NotEmpty(t, projection.Configs.Stdio)
	assert.Contains(t, projection.Configs.Stdio, `"mcpServers"`)
	assert.Contains(t, projection.Configs.Stdio, `"npx"`)
	assert.Contains(t, projection.Configs.Stdio, `"@example/installable-mcp@1.2.3"`)
	assert.Empty(t, projection.Configs.Remote)

	var config struct {
		MCPServers map[string]struct {
			Command string   `json:"command"`
			Args    []string `json:"args"`
		} `json:"mcpServers"`
	}
	require.NoError(t, json.Unmarshal([]byte(projection.Configs.Stdio), &config))
	server, ok := config.MCPServers["io.example_installable"]
	require.True(t, ok)
	assert.Equal(t, "npx", server.Command)
	assert.Equal(t, []string{"-y", "@example/installable-mcp@1.2.3"}, server.Args)
}

func TestProjectPythonRunners(t *testing.T) {
	testCases := []struct {
		name        string
		pkg         types.Package
		wantCommand string
		wantArgs    []string
	}{
		{
			name:        "pypi registry uses uvx",
			pkg:         types.Package{RegistryType: "pypi", Identifier: "docs-mcp", Version: "0.4.0"},
			wantCommand: "uvx",
			wantArgs:    []string{"docs-mcp==0.4.0"},
		},
		{
			name:        "python registry uses uvx",
			pkg:         types.Package{RegistryType: "python", Identifier: "docs-mcp"},
			wantCommand: "uvx",
			wantArgs:    []string{"docs-mcp"},
		},
		{
			name:        "uvx hint wins over registry",
			pkg:         types.Package{RegistryType: "npm", Identifier: "docs-mcp", Version: "2.0.0", RuntimeHint: "uvx"},
			wantCommand: "uvx",
			wantArgs:    []string{"docs-mcp==2.0.0"},
		},
		{
			name:        "pipx hint runs via pipx",
			pkg:         types.Package{Identifier: "docs-mcp", Version: "0.4.0", RuntimeHint: "pipx"},
			wantCommand: "pipx",
			wantArgs:    []string{"run", "docs-mcp==0.4.0"},
		},
		{
			name:        "default is npx",
			pkg:         types.Package{RegistryType: "npm", Identifier: "@example/docs", Version: "1.0.0"},
			wantCommand: "npx",
			wantArgs:    []string{"-y", "@example/docs@1.0.0"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record := types.ServerRecord{Name: "io.example/docs", Version: "1.0.0", Packages: []types.Package{tc.pkg}}
			projection := Project(record)
			require.NotNil(t, projection.Stdio)
			assert.Equal(t, tc.wantCommand, projection.Stdio.Command)
			assert.Equal(t, tc.wantArgs, projection.Stdio.Args)
		})
	}
}

func TestProjectDoesNotDoubleVersion(t *testing.T) {
	npm := types.ServerRecord{
		Name:    "io.example/pinned",
		Version: "2.0.0",
		Packages: []types.Package{{
			RegistryType: "npm",
			Identifier:   "@example/pinned@2.0.0",
			Version:      "2.0.0",
		}},
	}
	projection := Project(npm)
	require.NotNil(t, projection.Stdio)
	assert.Equal(t, []string{"-y", "@example/pinned@2.0.0"}, projection.Stdio.Args)

	pypi := types.ServerRecord{
		Name:    "io.example/pinned-py",
		Version: "1.0.0",
		Packages: []types.Package{{
			RegistryType: "pypi",
			Identifier:   "pinned==1.0.0",
			Version:      "1.0.0",
		}},
	}
	projection = Project(pypi)
	require.NotNil(t, projection.Stdio)
	assert.Equal(t, []string{"pinned==1.0.0"}, projection.Stdio.Args)
}

func TestProjectAppendsPositionalArguments(t *testing.T) {
	record := types.ServerRecord{
		Name:    "io.example/args",
		Version: "1.0.0",
		Packages: []types.Package{{
			RegistryType: "npm",
			Identifier:   "@example/args",
			Version:      "1.0.0",
			PackageArguments: []types.Argument{
				{Type: types.ArgumentTypePositional, Value: "--workspace"},
				{Type: "named", Value: "ignored"},
				{Type: types.ArgumentTypePositional, Value: "/data"},
			},
		}},
	}

	projection := Project(record)
	require.NotNil(t, projection.Stdio)
	assert.Equal(t, []string{"-y", "@example/args@1.0.0", "--workspace", "/data"}, projection.Stdio.Args)
}

func TestProjectStdioFallsBackToNonRemotePackage(t *testing.T) {
	record := types.ServerRecord{
		Name:    "io.example/fallback",
		Version: "1.0.0",
		Packages: []types.Package{
			{RegistryType: "npm", Identifier: "@example/remote", Transport: &types.Transport{Type: types.TransportStreamableHTTP, URL: "https://x.example.com"}},
			{RegistryType: "npm", Identifier: "@example/local", Version: "1.0.0"},
		},
	}

	projection := Project(record)
	require.NotNil(t, projection.Stdio)
	assert.Equal(t, []string{"-y", "@example/local@1.0.0"}, projection.Stdio.Args)
}

func TestProjectRemoteSanitizesHeaders(t *testing.T) {
	record := types.ServerRecord{
		Name:    "io.example/remote",
		Version: "3.1.0",
		Remotes: []types.Remote{{
			Type: types.TransportStreamableHTTP,
			URL:  "https://mcp.example.com/http",
			Headers: []types.Header{
				{Name: "Authorization", Required: true},
				{Name: "X-Api-Key", Required: true},
				{Name: "X-Tenant", Description: "tenant id", Required: false},
				{Name: "X-Session", IsSecret: true},
			},
		}},
	}

	projection := Project(record)
	assert.Equal(t, SummaryRemote, projection.Transport.Summary)
	require.NotNil(t, projection.Remote)
	assert.Equal(t, "https://mcp.example.com/http", projection.Remote.URL)

	values := map[string]string{}
	for _, header := range projection.Remote.Headers {
		values[header.Name] = header.Value
	}
	assert.Equal(t, "<set-secret>", values["Authorization"])
	assert.Equal(t, "<set-secret>", values["X-Api-Key"])
	assert.Equal(t, "<set-value>", values["X-Tenant"])
	assert.Equal(t, "<set-secret>", values["X-Session"])

	require.NotEmpty(t, projection.Configs.Remote)
	var config struct {
		MCPServers map[string]struct {
			Transport string            `json:"transport"`
			URL       string            `json:"url"`
			Headers   map[string]string `json:"headers"`
		} `json:"mcpServers"`
	}
	require.NoError(t, json.Unmarshal([]byte(projection.Configs.Remote), &config))
	server, ok := config.MCPServers["io.example_remote"]
	require.True(t, ok)
	assert.Equal(t, types.TransportStreamableHTTP, server.Transport)
	assert.Equal(t, "https://mcp.example.com/http", server.URL)
	assert.Equal(t, "<set-secret>", server.Headers["Authorization"])
}

func TestProjectTransportSummaries(t *testing.T) {
	hybrid := types.ServerRecord{
		Name:     "io.example/hybrid",
		Packages: []types.Package{{RegistryType: "npm", Identifier: "@example/h", Transport: &types.Transport{Type: types.TransportStdio}}},
		Remotes:  []types.Remote{{Type: types.TransportStreamableHTTP, URL: "https://h.example.com"}},
	}
	assert.Equal(t, SummaryHybrid, Project(hybrid).Transport.Summary)

	unknown := types.ServerRecord{Name: "io.example/bare"}
	projection := Project(unknown)
	assert.Equal(t, SummaryUnknown, projection.Transport.Summary)
	assert.Nil(t, projection.Stdio)
	assert.Nil(t, projection.Remote)
	assert.Empty(t, projection.Configs.Stdio)
	assert.Empty(t, projection.Configs.Remote)

	// SSE-only remotes are not connectable via the generic config.
	sseOnly := types.ServerRecord{
		Name:    "io.example/sse",
		Remotes: []types.Remote{{Type: types.TransportSSE, URL: "https://sse.example.com"}},
	}
	assert.Equal(t, SummaryUnknown, Project(sseOnly).Transport.Summary)
}

func TestConfigKeySanitization(t *testing.T) {
	assert.Equal(t, "io.example_docs", configKey("io.example/docs"))
	assert.Equal(t, "io.example_my_server", configKey("io.example/my server"))
	assert.Equal(t, "plain-name_v1.2", configKey("plain-name/v1.2"))
}
