// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"os"

	"github.com/groupsio/harnessd/internal/ptysession"
)

// AgentBuilder derives a ptysession.SpawnSpec from a conversation's
// agentType and adapterState. It is the "collaborator" spec §4.4 says
// the supervisor knows nothing about; grounded on claude.Session's
// ensureProcess, which assembles a claude CLI invocation and appends
// "--resume <claudeSID>" when resuming. This generalizes that one
// hardcoded agent into a small per-agentType table so the registry
// stays agent-agnostic.
type AgentBuilder struct {
	// Cwd maps a session's adapterState to its working directory;
	// gatewayd reads adapterState["cwd"] and falls back to ".". When Cwd
	// is nil, Build uses ".".
	Cwd func(adapterState map[string]interface{}) string
}

var agentCommands = map[string]string{
	"claude": "claude",
	"shell":  os.Getenv("SHELL"),
	"codex":  "codex",
}

func init() {
	if agentCommands["shell"] == "" {
		agentCommands["shell"] = "/bin/sh"
	}
}

// Build implements ptysession.ProcessBuilder.
func (b *AgentBuilder) Build(agentType string, adapterState map[string]interface{}, cols, rows int) (ptysession.SpawnSpec, error) {
	command, ok := agentCommands[agentType]
	if !ok || command == "" {
		return ptysession.SpawnSpec{}, fmt.Errorf("unknown agentType %q", agentType)
	}

	var args []string
	switch agentType {
	case "claude":
		args = []string{
			"--output-format", "stream-json",
			"--input-format", "stream-json",
			"--permission-prompt-tool", "stdio",
			"--include-partial-messages",
		}
		if resumeID, ok := adapterState["resumeSessionId"].(string); ok && resumeID != "" {
			args = append(args, "--resume", resumeID)
		}
	case "codex":
		if resumeID, ok := adapterState["resumeSessionId"].(string); ok && resumeID != "" {
			args = []string{"resume", resumeID}
		}
	}

	cwd := "."
	if b.Cwd != nil {
		if dir := b.Cwd(adapterState); dir != "" {
			cwd = dir
		}
	}

	return ptysession.SpawnSpec{
		Command:     command,
		Args:        args,
		Env:         os.Environ(),
		Cwd:         cwd,
		InitialCols: cols,
		InitialRows: rows,
	}, nil
}
