// Package install turns a catalog entry into ready-to-paste client
// configuration, including host-config JSON in the common mcpServers shape.
package install

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// Transport summaries.
const (
	SummaryStdio   = "stdio"
	SummaryRemote  = "remote"
	SummaryHybrid  = "hybrid"
	SummaryUnknown = "unknown"
)

// Placeholder values for remote header configuration.
const (
	placeholderSecret = "<set-secret>"
	placeholderValue  = "<set-value>"
)

var (
	secretHeaderPattern = regexp.MustCompile(`(?i)authorization|token|secret|password|api[-_]?key`)
	configKeyPattern    = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// Projection is the install surface of one server.
type Projection struct {
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	Transport TransportInfo  `json:"transport"`
	Stdio     *StdioInstall  `json:"stdio,omitempty"`
	Remote    *RemoteInstall `json:"remote,omitempty"`
	Configs   Configs        `json:"configs"`
}

// TransportInfo summarizes how the server can be attached.
type TransportInfo struct {
	Summary   string `json:"summary"`
	HasStdio  bool   `json:"hasStdio"`
	HasRemote bool   `json:"hasRemote"`
}

// StdioInstall is a local launch command.
type StdioInstall struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// RemoteInstall is a remote connection block with sanitized header values.
type RemoteInstall struct {
	URL     string   `json:"url"`
	Headers []Header `json:"headers,omitempty"`
}

// Header is a remote header with its value replaced by a placeholder; real
// values never pass through the catalog.
type Header struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	IsSecret    bool   `json:"isSecret"`
	Value       string `json:"value"`
}

// Configs carries pretty-printed host config JSON per available transport.
type Configs struct {
	Remote string `json:"remote,omitempty"`
	Stdio  string `json:"stdio,omitempty"`
}

// Project derives the install projection for a server record.
func Project(record types.ServerRecord) Projection {
	projection := Projection{
		Name:    record.Name,
		Version: record.Version,
		Stdio:   stdioInstall(record),
		Remote:  remoteInstall(record),
	}

	projection.Transport = TransportInfo{
		HasStdio:  projection.Stdio != nil,
		HasRemote: projection.Remote != nil,
	}
	switch {
	case projection.Stdio != nil && projection.Remote != nil:
		projection.Transport.Summary = SummaryHybrid
	case projection.Stdio != nil:
		projection.Transport.Summary = SummaryStdio
	case projection.Remote != nil:
		projection.Transport.Summary = SummaryRemote
	default:
		projection.Transport.Summary = SummaryUnknown
	}

	key := configKey(record.Name)
	if projection.Remote != nil {
		projection.Configs.Remote = remoteConfigJSON(key, projection.Remote)
	}
	if projection.Stdio != nil {
		projection.Configs.Stdio = stdioConfigJSON(key, projection.Stdio)
	}
	return projection
}

// stdioInstall picks the stdio-capable package and derives its launch
// command. Packages declaring a stdio transport win; otherwise the first
// package that is not remote-only is used.
func stdioInstall(record types.ServerRecord) *StdioInstall {
	pkg := stdioPackage(record.Packages)
	if pkg == nil {
		return nil
	}

	command, args, versionSeparator := runnerFor(pkg)

	identifier := pkg.Identifier
	if pkg.Version != "" && !carriesVersion(identifier, versionSeparator) {
		identifier = identifier + versionSeparator + pkg.Version
	}
	args = append(args, identifier)

	for _, arg := range pkg.PackageArguments {
		if arg.Type == types.ArgumentTypePositional && arg.Value != "" {
			args = append(args, arg.Value)
		}
	}
	return &StdioInstall{Command: command, Args: args}
}

func stdioPackage(packages []types.Package) *types.Package {
	for i := range packages {
		if packages[i].Transport != nil && packages[i].Transport.Type == types.TransportStdio {
			return &packages[i]
		}
	}
	for i := range packages {
		if packages[i].Transport == nil || packages[i].Transport.Type != types.TransportStreamableHTTP {
			return &packages[i]
		}
	}
	return nil
}

// runnerFor maps a package to its launch command plus leading args, along
// with the version-pin separator its ecosystem uses.
func runnerFor(pkg *types.Package) (string, []string, string) {
	registry := strings.ToLower(pkg.RegistryType)
	switch {
	case pkg.RuntimeHint == "uvx" || registry == "pypi" || registry == "python":
		return "uvx", nil, "=="
	case pkg.RuntimeHint == "pipx":
		return "pipx", []string{"run"}, "=="
	default:
		return "npx", []string{"-y"}, "@"
	}
}

// carriesVersion reports whether the identifier already pins a version. For
// the npm separator a leading scope @ does not count.
func carriesVersion(identifier, separator string) bool {
	if separator == "@" {
		return strings.LastIndex(identifier, "@") > 0
	}
	return strings.Contains(identifier, separator)
}

func remoteInstall(record types.ServerRecord) *RemoteInstall {
	for _, remote := range record.Remotes {
		if remote.Type != types.TransportStreamableHTTP || remote.URL == "" {
			continue
		}
		install := &RemoteInstall{URL: remote.URL}
		for _, header := range remote.Headers {
			install.Headers = append(install.Headers, Header{
				Name:        header.Name,
				Description: header.Description,
				Required:    header.Required,
				IsSecret:    header.IsSecret,
				Value:       headerPlaceholder(header),
			})
		}
		return install
	}
	return nil
}

func headerPlaceholder(header types.Header) string {
	if header.IsSecret || secretHeaderPattern.MatchString(header.Name) {
		return placeholderSecret
	}
	return placeholderValue
}

// configKey sanitizes a server name into an mcpServers key.
func configKey(name string) string {
	return configKeyPattern.ReplaceAllString(name, "_")
}

func remoteConfigJSON(key string, remote *RemoteInstall) string {
	server := map[string]any{
		"transport": types.TransportStreamableHTTP,
		"url":       remote.URL,
	}
	if len(remote.Headers) > 0 {
		headers := make(map[string]string, len(remote.Headers))
		for _, header := range remote.Headers {
			headers[header.Name] = header.Value
		}
		server["headers"] = headers
	}
	return hostConfigJSON(key, server)
}

func stdioConfigJSON(key string, stdio *StdioInstall) string {
	return hostConfigJSON(key, map[string]any{
		"command": stdio.Command,
		"args":    stdio.Args,
	})
}

func hostConfigJSON(key string, server map[string]any) string {
	config := map[string]any{
		"mcpServers": map[string]any{key: server},
	}
	raw, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		// Everything serialized here is maps, strings and slices.
		return fmt.Sprintf("{%q: {}}", "mcpServers")
	}
	return string(raw)
}
