// Package logx configures rings' structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional event-bus sink (min-level + rate limiting) so log lines can
//     be shown next to the chat pages
package logx
