// Package peerlink lets independently addressed peers establish authenticated connections
// with each other, either directly or through an intermediary that vouches for the
// introduction with a single-use grant.
//
// The protocol itself lives in package node and talks to the outside only through a Sender
// and the Deliver entry point. This package wires a node to the QUIC transport and a
// discovery resolver. Tests and the demo command use transport/memory instead.
package peerlink
