// Package main (cmd/secretadmin) holds the operator tooling of the secret
// management server.
//
// Commands:
//
//	generate-master-key - print a random hex master key for the local:// gateway
//	split-master-key    - split a master key into Shamir shares
//	combine-master-key  - reconstruct a master key from a threshold of shares
//	generate-signer     - print a fresh secp256k1 key and its address for clients
//	migrate             - create the PostgreSQL schema
//
// A typical bootstrap generates a master key, splits it 2-of-3 and hands one
// share to each operator. The server is then started with two of the shares:
//
//	secret-admin generate-master-key | secret-admin split-master-key --shares=3 --threshold=2
//	secret-server --master-key-share=<share 1> --master-key-share=<share 2>
package main
