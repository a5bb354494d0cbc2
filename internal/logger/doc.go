// Package logger wraps zap for the launcher:
//   - a global sugared console logger writing to stderr (stdout belongs to the tool),
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and configuration.
//
// Every stage of the launch sequence takes a context and logs through it.
package logger
