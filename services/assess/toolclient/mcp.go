// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolclient connects the assessment engine to target systems
// over the Model Context Protocol. Each target is an MCP server,
// reached either by launching a local command (stdio) or over
// streamable HTTP; its tools are the capabilities the scan executor
// invokes. Transport failures are classified into the agent package's
// sentinel errors so the executor's retry policy can act on kind, not
// on provider-specific strings.
package toolclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
)

// TargetConfig tells the client how to reach one target. Exactly one
// of Command or Endpoint should be set; a Credentials.Endpoint passed
// at connect time overrides Endpoint.
type TargetConfig struct {
	// Command launches a local MCP server and talks stdio.
	Command []string `yaml:"command"`

	// Endpoint is a streamable-HTTP MCP server URL.
	Endpoint string `yaml:"endpoint"`
}

// Client implements agent.ToolClient over MCP.
//
// Thread Safety: Client is safe for concurrent use. Sessions are not;
// the scan executor serializes reconnects itself.
type Client struct {
	impl    *mcp.Client
	targets map[string]TargetConfig
}

// NewClient builds the MCP client for a target catalog.
func NewClient(targets map[string]TargetConfig) *Client {
	return &Client{
		impl: mcp.NewClient(&mcp.Implementation{
			Name:    "veracity-assess",
			Version: "0.1.0",
		}, nil),
		targets: targets,
	}
}

type session struct {
	target string
	cs     *mcp.ClientSession
}

func (s *session) Target() string { return s.target }
func (s *session) Close() error   { return s.cs.Close() }

// Connect implements agent.ToolClient.
func (c *Client) Connect(ctx context.Context, target string, creds agent.Credentials) (agent.Session, error) {
	tc := c.targets[target]
	endpoint := tc.Endpoint
	if creds.Endpoint != "" {
		endpoint = creds.Endpoint
	}

	var transport mcp.Transport
	switch {
	case len(tc.Command) > 0:
		cmd := exec.CommandContext(ctx, tc.Command[0], tc.Command[1:]...)
		cmd.Env = os.Environ()
		if creds.Token != "" {
			cmd.Env = append(cmd.Env, "TARGET_TOKEN="+creds.Token)
		}
		transport = &mcp.CommandTransport{Command: cmd}
	case endpoint != "":
		transport = &mcp.StreamableClientTransport{
			Endpoint:   endpoint,
			HTTPClient: authedHTTPClient(creds.Token),
		}
	default:
		return nil, fmt.Errorf("%w: no transport configured for target %q", agent.ErrConnection, target)
	}

	cs, err := c.impl.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %q: %v", agent.ErrConnection, target, err)
	}
	return &session{target: target, cs: cs}, nil
}

// ListCapabilities implements agent.ToolClient.
func (c *Client) ListCapabilities(ctx context.Context, s agent.Session) ([]string, error) {
	ms, err := mcpSession(s)
	if err != nil {
		return nil, err
	}
	res, err := ms.cs.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// Invoke implements agent.ToolClient.
func (c *Client) Invoke(ctx context.Context, s agent.Session, capability string, args map[string]any) (agent.RawToolResult, error) {
	ms, err := mcpSession(s)
	if err != nil {
		return agent.RawToolResult{}, err
	}
	if args == nil {
		args = map[string]any{}
	}

	res, err := ms.cs.CallTool(ctx, &mcp.CallToolParams{Name: capability, Arguments: args})
	if err != nil {
		return agent.RawToolResult{}, classifyCallErr(err)
	}
	text := contentText(res.Content)
	if res.IsError {
		return agent.RawToolResult{}, classifyToolError(capability, text)
	}
	return agent.ParseRawResult([]byte(text)), nil
}

func mcpSession(s agent.Session) (*session, error) {
	ms, ok := s.(*session)
	if !ok || ms.cs == nil {
		return nil, fmt.Errorf("%w: session is not an MCP session", agent.ErrConnection)
	}
	return ms, nil
}

// contentText joins the text content blocks of a tool result.
func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// classifyCallErr maps a CallTool transport error onto the sentinel
// the retry policy keys on.
func classifyCallErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", agent.ErrConnectionClosed, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection closed"), strings.Contains(msg, "session closed"),
		strings.Contains(msg, "broken pipe"):
		return fmt.Errorf("%w: %v", agent.ErrConnectionClosed, err)
	case strings.Contains(msg, "tool not found"), strings.Contains(msg, "unknown tool"):
		return fmt.Errorf("%w: %v", agent.ErrCapabilityNotFound, err)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return fmt.Errorf("%w: %v", agent.ErrRateLimited, err)
	default:
		return fmt.Errorf("%w: %v", agent.ErrInvocation, err)
	}
}

// classifyToolError maps a protocol-level tool error (IsError result)
// onto a sentinel. The tool executed, so the default is an invocation
// failure, not a connection problem.
func classifyToolError(capability, text string) error {
	msg := strings.ToLower(text)
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return fmt.Errorf("%w: %s: %s", agent.ErrRateLimited, capability, firstLine(text))
	case strings.Contains(msg, "not found") && strings.Contains(msg, "tool"):
		return fmt.Errorf("%w: %s", agent.ErrCapabilityNotFound, capability)
	default:
		return fmt.Errorf("%w: %s: %s", agent.ErrInvocation, capability, firstLine(text))
	}
}

func classifyTransportErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", agent.ErrConnectionClosed, err)
	}
	return fmt.Errorf("%w: %v", agent.ErrConnection, err)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// authedHTTPClient adds a bearer token to every request when a token
// is present.
func authedHTTPClient(token string) *http.Client {
	if token == "" {
		return http.DefaultClient
	}
	return &http.Client{Transport: &bearerTransport{token: token}}
}

type bearerTransport struct {
	token string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(clone)
}
