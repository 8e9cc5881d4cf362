// Package ipc relays requests between the host and its windows.
//
// An invocation is broadcast to every registered target under a fresh
// "req_<ulid>" request ID. The first target to reply with that ID resolves
// the invocation; any later reply is dropped. Events are broadcast the same
// way but expect no reply.
package ipc
