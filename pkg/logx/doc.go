// Package logx is remindbot's structured logging layer.
//
// Logger wraps zerolog so callers pass typed fields instead of building events:
//   - console output stays human readable (short timestamp, file:line caller)
//   - the optional file sink writes JSON lines
//   - the optional Telegram sink forwards warnings to the operator chat, rate limited
package logx
