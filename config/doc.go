// Package config loads the server configuration.
//
// Values are layered, later sources overriding earlier ones:
//
//  1. built-in defaults
//  2. an optional YAML file (--config or CONFIG_FILE) with ${VAR} expansion
//  3. a .env file in the working directory
//  4. process environment variables (upper-cased field names)
//  5. command-line flags (--field_name)
//
// Every scalar field has a flag and an environment variable of the same name.
// The backend API key additionally falls back to OPENAI_API_KEY.
package config
