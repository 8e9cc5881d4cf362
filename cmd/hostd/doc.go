// Command hostd runs the desktop host runtime and offers offline access to
// its storage files.
//
//	hostd serve --port 8000
//	hostd storage read settings
//	hostd storage write settings '{"theme":"dark"}'
package main
