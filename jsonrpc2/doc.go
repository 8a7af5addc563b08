/*
	Package jsonrpc2 implements the JSONRPC 2.0 framing used by Electrum
	servers: newline-delimited messages over a stream, with batches and
	server-initiated notifications.

	Codec is the transport and encoding. It reads whole frames, where a frame
	is either a single message or a batch array, and writes messages or
	batches as a single line.

	Session is the calling side. It allocates IDs with a Client, keeps a set
	of pending calls, resolves them as replies arrive in any order and hands
	notifications to a Notifier. When the codec fails, every pending call
	fails with a ConnectionLostError and the session stays dead.

	Server is an RPC method registry. Given a receiver, it will expose callable
	methods either by lowercased Go name or by an explicit RPC name.
*/
package jsonrpc2
