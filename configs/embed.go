// Package configs embeds the configuration template written by
// `lorerank init`.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented .lorerank.yaml template. Every key
// shows its default.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
