package config

// SiteConfig holds per-site settings from the configuration file.
type SiteConfig struct {
	// Cookie is a Cookie header value, e.g. "name1=value1; name2=value2".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra request headers.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the crawl depth. Zero keeps the global value.
	Depth int `yaml:"depth,omitempty"`

	// IgnorePatterns are URL path globs to skip.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, if specified, are the only URL path globs followed.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// Formats overrides the default output formats.
	Formats []string `yaml:"formats,omitempty"`
}

// File represents the structure of the .websaver.yaml configuration file.
type File struct {
	// Sites maps host names (e.g. "docs.example.com") to their settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host, merged over defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	if len(siteConfig.Formats) > 0 {
		result.Formats = siteConfig.Formats
	}
	return result
}
