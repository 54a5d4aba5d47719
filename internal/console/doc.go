// Package console provides the operator console on stdin.
//
// Commands are status, reset, delete, help, sensor, simulate, set_id and
// exit. set_id takes the identifier on the following line. simulate reads
// one distance per line, feeding the proximity detector, until exit.
//
// Parse and ParseSample are pure; Console drives them against the agent.
// The console only runs when stdin is a terminal unless forced by config.
package console
