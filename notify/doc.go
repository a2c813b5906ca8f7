// Package notify provides goCred.Notifier and goCred.Renderer
// implementations.
//
// # Notifiers
//
//   - [SMTP]: sends multipart text/HTML mail through go-mail.
//   - [AMQP]: publishes the rendered message as JSON to a RabbitMQ exchange
//     for an external mail worker.
//   - [Log]: logs envelope metadata through zap and sends nothing. Intended
//     for development.
//   - [Fallback]: tries a primary notifier, then a secondary one.
//
// # Templates
//
// [Templates] renders OTP, reset-link, welcome and security-alert messages
// from dynamic values only: name, code, link, expiry and event. The built-in
// set can be replaced per kind from a directory with [LoadTemplates].
//
// # What this package must NOT do
//
//   - Log message bodies. They carry codes and reset links.
//   - Retry. The engine decides what a failed delivery means.
package notify
