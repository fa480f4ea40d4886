// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
)

const (
	// DisableRedirectCaching turns the redirection cache off process-wide.
	DisableRedirectCaching = "DISABLE_REDIRECT_CACHING"
	// DisableSessionCaching stops idle sessions from being pooled.
	DisableSessionCaching = "DISABLE_SESSION_CACHING"

	prefix = "ZAPDAV"
)

var (
	v    *viper.Viper
	once sync.Once
)

func load() *viper.Viper {
	once.Do(func() {
		v = viper.New()
		v.SetEnvPrefix(prefix)
		v.AutomaticEnv()
	})
	return v
}

// Bool reads ZAPDAV_<key> as a boolean. It accepts true/yes/y/1 and
// false/no/n/0 in any case; anything else yields def.
func Bool(key string, def bool) bool {
	raw := strings.TrimSpace(load().GetString(key))
	return ParseBool(raw, def)
}

// ParseBool is the parser behind Bool.
func ParseBool(raw string, def bool) bool {
	switch strings.ToLower(raw) {
	case "true", "yes", "y", "1":
		return true
	case "false", "no", "n", "0":
		return false
	}
	return def
}

// RedirectCachingDisabled reports whether ZAPDAV_DISABLE_REDIRECT_CACHING is set.
func RedirectCachingDisabled() bool {
	return Bool(DisableRedirectCaching, false)
}

// SessionCachingDisabled reports whether ZAPDAV_DISABLE_SESSION_CACHING is set.
func SessionCachingDisabled() bool {
	return Bool(DisableSessionCaching, false)
}
