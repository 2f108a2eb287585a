// Package creds loads venue account credentials from a YAML file kept
// outside the repository, typically ~/.xapi/credentials.yaml.
package creds
