// Package notifier turns a classified stock change into user-facing messages.
//
// # Rendering
//
// Messages are rendered from the policy template for the change kind. When
// that template is empty or fails to render, a built-in template is tried,
// and finally a minimal message assembled from item fields. Rendering never
// prevents a dispatch.
//
// # Delivery
//
// The Dispatcher fans out to every enabled target of the policy through a
// transport.Sender and writes exactly one NotificationRecord per dispatch
// describing the aggregate outcome.
package notifier
