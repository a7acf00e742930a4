// Package logx is slotwatch's logging layer: a value-type Logger over zerolog
// whose sinks and level can be swapped while watch mode is running.
//
// Console output is human readable unless JSON is set; the optional file sink
// always gets JSON lines.
package logx
