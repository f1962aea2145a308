// Package notifier renders deadline batches as Telegram HTML and delivers
// them to their chat. Delivery is attempted once; failures come back as
// *DeliveryError for the caller to report.
package notifier
