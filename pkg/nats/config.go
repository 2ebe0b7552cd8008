// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package nats

// Config holds the configuration for connecting to a NATS server, parsed
// by internal/config out of the `nats:` block of a YAML `sources.nats.<name>`
// entry or of a `sinks.<name>` entry with `type: nats`.
type Config struct {
	Address       string `yaml:"address"`                  // NATS server address (e.g., "nats://localhost:4222")
	Username      string `yaml:"username,omitempty"`        // optional
	Password      string `yaml:"password,omitempty"`        // optional
	CredsFilePath string `yaml:"creds-file-path,omitempty"` // optional, path to a NATS credentials file
}

// ConfigSchema is the JSON schema internal/config validates every NATS
// sub-block against after decoding the YAML.
const ConfigSchema = `{
    "type": "object",
    "description": "Configuration for a NATS messaging client.",
    "properties": {
        "address": {
            "description": "Address of the NATS server (e.g., 'nats://localhost:4222').",
            "type": "string"
        },
        "username": {
            "description": "Username for NATS authentication (optional).",
            "type": "string"
        },
        "password": {
            "description": "Password for NATS authentication (optional).",
            "type": "string"
        },
        "creds-file-path": {
            "description": "Path to NATS credentials file for authentication (optional).",
            "type": "string"
        }
    },
    "required": ["address"]
}`
