// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// websaver sends user supplied headers and cookies to the sites it crawls,
// and crawled URLs may carry credentials in their query. The SecureHandler
// keeps both out of log output:
//   - attributes named like headers or credentials (Authorization, Cookie,
//     token, password) are replaced by MaskValue
//   - values that look like credentials (bearer and basic tokens, JWTs,
//     vendor API keys) are replaced by MaskValue
//   - URL values keep their host and path, but user info and credential
//     query parameters are masked
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("rendered document",
//	    "url", "https://example.com/report?token=abc", // token is masked
//	    "cookie", "session=abc123",                    // masked
//	)
//	slog.SetDefault(logger)
package log
