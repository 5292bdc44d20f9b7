package openrouter

import (
	"strings"
	"time"

	"github.com/tjfontaine/kudospace/internal/validation"
)

const (
	DefaultAPIURL    = "https://openrouter.ai/api/v1"
	DefaultModel     = "meta-llama/llama-3.3-70b-instruct:free"
	DefaultTimeoutMS = 30000
	DefaultSiteURL   = "https://kudospace.dev"
	DefaultAppTitle  = "KudoSpace"
)

var schema = validation.New()

// Config is the service configuration. Zero fields other than APIKey take
// their defaults.
type Config struct {
	APIKey       string `json:"apiKey" validate:"required"`
	APIURL       string `json:"apiUrl" validate:"required,url"`
	DefaultModel string `json:"defaultModel" validate:"required"`
	TimeoutMS    int    `json:"timeoutMs" validate:"gt=0"`

	// SiteURL and AppTitle identify the caller to OpenRouter.
	SiteURL  string `json:"siteUrl"`
	AppTitle string `json:"appTitle"`
}

func (c Config) withDefaults() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	c.APIURL = strings.TrimSuffix(c.APIURL, "/")
	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModel
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = DefaultTimeoutMS
	}
	if c.SiteURL == "" {
		c.SiteURL = DefaultSiteURL
	}
	if c.AppTitle == "" {
		c.AppTitle = DefaultAppTitle
	}
	return c
}

func (c Config) validate() error {
	if err := schema.Struct(c); err != nil {
		return errConfiguration("Invalid OpenRouter configuration: %s", validation.Describe(err))
	}
	return nil
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
