package datalayer

import (
	"errors"
	"fmt"
	"net/url"
)

// DefaultLiteralServer is used when neither server variable is set.
const DefaultLiteralServer = "https://cloud.getliteral.ai"

var ErrMissingAPIKey = errors.New("datalayer: literal api key is empty")

// LiteralDataLayer is the handle to the managed Literal backend.
type LiteralDataLayer struct {
	APIKey string
	Server *url.URL
}

// NewLiteralDataLayer validates the key and server. It performs no I/O.
func NewLiteralDataLayer(apiKey, server string) (DataLayer, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if server == "" {
		server = DefaultLiteralServer
	}

	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parse literal server %q: %w", server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("literal server %q: unsupported scheme %q", server, u.Scheme)
	}

	return &LiteralDataLayer{APIKey: apiKey, Server: u}, nil
}

func (l *LiteralDataLayer) Name() string { return "literal" }

func (l *LiteralDataLayer) Close() error { return nil }
