// Package bili is the HTTP client for the provider's content API: video
// metadata, danmaku submission (WBI-signed), and the live danmaku listing.
//
// Transport failures are translated into *APIError with one of a small closed
// set of synthetic codes so the classifier can map them deterministically.
package bili
