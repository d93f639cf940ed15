// Package commands defines the peerlink CLI.
//
// Commands
//
//   - keygen   Generate an identity and print its peer id
//   - demo     Run the handshake scenarios between in-process nodes
//
// The root command builds the zap logger from --log-level and --log-json before any
// subcommand runs.
package commands
