// Package logger builds *slog.Logger instances with a consistent shape across
// the client runtime.
//
// New applies functional options (format, level, output, static attributes,
// context extractors) and wraps the chosen slog handler with a decorator that
// pulls request- or session-scoped values out of context.Context on every
// record. Attribute helpers in attr.go keep key names uniform: logger.Error,
// logger.UserID, logger.State, logger.Owner and friends.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "shop-client"),
//	    logger.WithContextValue("user_id", userIDKey{}),
//	)
//	log.LogAttrs(ctx, slog.LevelWarn, "refresh failed",
//	    logger.Component("session"),
//	    logger.Error(err),
//	)
package logger
