// Package tgui holds small helpers for Telegram HTML messages:
// escaping and inline tags, rune-safe truncation, and list paging.
package tgui
