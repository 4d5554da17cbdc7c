// Package logger provides component-scoped structured logging for ytstream,
// backed by logrus.
//
// Usage:
//
//	log := logger.WithComponent(logger.ComponentBridge)
//	log.Info("decipher finished", map[string]interface{}{
//		"video_id": "dQw4w9WgXcQ",
//		"entries":  42,
//	})
//
// The global logger is replaced once at startup from configuration:
//
//	l, closer, err := logger.FromSettings(settings)
//	logger.SetGlobalLogger(l)
//
// Components: app, server, cookies, client, fetcher, extractor, bridge, normalizer.
package logger
