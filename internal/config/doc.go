// Package config handles YAML configuration loading with environment
// variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation. Defaults target the public venue endpoints; tests and
// alternative deployments override them.
package config
