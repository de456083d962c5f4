// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

/*
Package websocket streams live worker updates to dashboard clients.

The Hub receives uplink frames from the supervisor (health samples, state
snapshots, finished rounds and milestone crossings) plus worker lifecycle
changes, and fans them out to every connected Client.

Message format:

	{"type": "snapshot", "target": "table-1", "data": {...}}

Clients may restrict the stream to some targets:

	{"type": "subscribe", "targets": ["table-1", "table-2"]}

and may send {"type": "ping"} to receive a pong.

Broadcasting never blocks the caller. A full hub buffer drops the message;
a client whose own buffer is full is disconnected.
*/
package websocket
