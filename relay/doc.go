// Package relay contains the in-process relay client and the wire types it
// shares with the relay server.
//
// The relay lets a browser watch a workflow's history event stream and
// submit interaction answers without a persistent socket: the client
// forwards every appended event to the server's session store and
// long-polls for queued answers, confirming each one before delivery so an
// answer is never handed to two waiters.
package relay
