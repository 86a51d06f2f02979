/*
Package log holds Burrow's root zerolog logger.

Setup configures it once at startup; every subsystem derives a child
via Component and attaches request-scoped fields (dataset version, blob
kind) at the call site:

	if err := log.Setup("debug", true, nil); err != nil {
		return err
	}

	logger := log.Component("producer").With().
		Stringer("to_version", toVersion).Logger()
	logger.Info().Msg("Cycle complete")
*/
package log
