// bwingest reads the output of one bwctl throughput test from stdin and
// writes the iperf3 result to an esmond measurement archive. Designed to be
// called by the bwctl regular-testing scheduler as an output pipe.
//
// Usage:
//
//	bwctl -T iperf3 -c receiver.example.net | bwingest -u perfsonar -k $API_KEY
//
// Environment variables:
//
//	BWINGEST_CONF  config file (default: ~/.bwingest/config.yaml)
package main

import "github.com/ppiankov/bwingest/internal/cli"

func main() {
	cli.Execute()
}
