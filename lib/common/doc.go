// Package common contains the pieces shared by the library packages and the
// command line interface:
//
//   - logger: A custom implementation of dragonboat's logger.ILogger with a
//     compact "LEVEL | package | message" format, and InitLoggers to install
//     it and set the level of all named loggers of this module.
//   - config: The configuration of the bench command with a readable String()
//     representation.
package common
