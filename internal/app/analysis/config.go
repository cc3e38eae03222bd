package analysis

import (
	"net/url"
	"time"
)

type Config struct {
	BaseUrl *url.URL
	Timeout time.Duration
	Rules   string
	Komi    float64
}
