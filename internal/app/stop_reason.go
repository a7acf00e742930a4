package app

// StopReason says why watch mode ended. It is logged on shutdown.
type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)
