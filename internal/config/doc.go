// Package config handles configuration loading for the boardroom client.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; an absent file is
// not an error at the call sites that fall back to Default().
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	engine:
//	  token: "${BOARDROOM_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	engine:
//	  meta_timeout: "10s"
//	  stall_timeout: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Engine endpoint and transport tuning:
//
//	engine:
//	  url: "https://boardroom.example.com/api/boardroom"
//	  mode: "fetch"        # fetch (streamed POST) or subscribe (persistent channel)
//	  token: "${BOARDROOM_TOKEN}"
//	  meta_timeout: "10s"  # max wait for the roster before the first retry
//	  stall_timeout: "30s" # max silence mid-stream
//	  max_retries: 3
//
// Stream multiplexing:
//
//	stream:
//	  max_concurrent: 5    # agent streams rendered at once
//
// Session database:
//
//	database:
//	  path: "~/.local/share/boardroom/sessions.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
