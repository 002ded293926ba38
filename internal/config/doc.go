// Package config loads the daemon's configuration file.
//
// The configuration is a versioned YAML document. Every field has a
// default, so an absent file yields a fully usable configuration; a
// present file only needs to name the fields it overrides.
//
// IMPORTANT: this file never stores network credentials. Those live in
// the credential store under the state directory and are written only
// through the provisioning paths.
package config
