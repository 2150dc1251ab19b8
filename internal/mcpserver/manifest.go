package mcpserver

import (
	"encoding/json"
)

// Manifest is the MCP registry server.json document.
type Manifest struct {
	Schema      string      `json:"$schema"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Repository  *Repository `json:"repository,omitempty"`
	Packages    []Package   `json:"packages,omitempty"`
}

// Repository is the source repository of the server.
type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Package describes how a client launches the server.
type Package struct {
	RegistryType     string     `json:"registryType"`
	Identifier       string     `json:"identifier"`
	PackageArguments []Argument `json:"packageArguments,omitempty"`
	Transport        Transport  `json:"transport"`
}

// Argument is a command-line argument passed at launch.
type Argument struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// Transport names the protocol transport.
type Transport struct {
	Type string `json:"type"`
}

const manifestSchema = "https://static.modelcontextprotocol.io/schemas/2025-10-17/server.schema.json"

// GenerateManifest renders server.json for the given version.
func GenerateManifest(version string) ([]byte, error) {
	if version == "" {
		version = "0.0.0"
	}
	m := Manifest{
		Schema:      manifestSchema,
		Name:        "io.github.panbanda/clonestream",
		Description: "Streaming clone detection over an append-only corpus of uploaded files",
		Version:     version,
		Repository: &Repository{
			URL:    "https://github.com/panbanda/clonestream",
			Source: "github",
		},
		Packages: []Package{{
			RegistryType:     "oci",
			Identifier:       "ghcr.io/panbanda/clonestream:" + version,
			PackageArguments: []Argument{{Type: "positional", Value: "mcp"}},
			Transport:        Transport{Type: "stdio"},
		}},
	}
	return json.MarshalIndent(m, "", "  ")
}
