package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var projectName string
	var dsn string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new lorebind project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(projectName) == "" {
				return fmt.Errorf("--name is required")
			}
			return runInit(cmd, projectName, dsn)
		},
	}
	cmd.Flags().StringVar(&projectName, "name", "", "Project name")
	cmd.Flags().StringVar(&dsn, "dsn", "sqlite://lorebind.db", "Database DSN")
	return cmd
}

const sampleEntry = `---
uid: 0
title: Example
key: [example]
order: 100
---

This entry is inserted whenever a recent message mentions "example".
`

func runInit(cmd *cobra.Command, projectName, dsn string) error {
	entryPath := filepath.Join("lore", "example", "example.md")
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	configContents := fmt.Sprintf(`project: %s
version: 1
owner: local

database:
  dsn: %s

books:
  - name: Example
    description: A starter book
    paths:
      - ./lore/example/
    bindings:
      - scope: global

exclude:
  - ./lore/drafts/

settings:
  scanDepth: 2
  budgetPercent: 25
  contextWindowTokens: 8192
  recursive: true

log:
  level: info
  format: console
`, projectName, dsn)
	if err := os.WriteFile(configPath, []byte(configContents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(entryPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(entryPath), err)
	}
	if _, err := os.Stat(entryPath); err == nil {
		return nil
	}
	if err := os.WriteFile(entryPath, []byte(sampleEntry), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", entryPath, err)
	}
	cmd.Printf("Created %s and %s\n", configPath, entryPath)
	return nil
}
