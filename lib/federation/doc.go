// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package federation is the outbound side of server-to-server traffic.
//
// Every request is addressed with a matrix:// URI naming the
// destination server. [Transport] resolves the server name to a
// concrete host and port through a [Resolver], rewrites the scheme to
// the wire scheme (https), and signs the request with the X-Matrix
// scheme: the object
//
//	{"method", "uri", "origin", "destination", "content"?}
//
// is canonically encoded and signed with the server key, and sent as
//
//	Authorization: X-Matrix origin=<origin>,key="<key id>",sig="<signature>"
//
// alongside a Host header naming the destination.
//
// Outcomes are classified for callers: a non-2xx response is an
// [*Error] with the status and parsed body, a network failure is a
// [*TransportError], and verbs this server does not speak yet fail with
// errkind.NotImplemented. There are no retries; each call has a fixed
// timeout.
package federation
