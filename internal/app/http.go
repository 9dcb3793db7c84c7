package app

import (
	"context"
	"net/http"

	"retrospect/pkg/api"
	"retrospect/pkg/auth"
	"retrospect/pkg/banner"
	"retrospect/pkg/telemetry"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// startHTTP builds the handler, starts the HTTP server in a goroutine and
// returns a channel that will contain any server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	router := api.Router(api.Deps{
		Archive:   a.archive,
		Contacts:  a.contacts,
		Cache:     a.cache,
		Converter: a.converter,
		Prewarm:   a.queue,
		Gate:      a.gate,
		Version:   a.version,
	})

	// build security config for the gateway middleware
	sec := a.eff.Config.Security
	secCfg := auth.SecConfig{
		AllowedOrigins: append([]string{}, sec.CORS.AllowedOrigins...),
		RPS:            sec.RateLimit.RPS,
		Burst:          sec.RateLimit.Burst,
		IPWhitelist:    append([]string{}, sec.IPWhitelist...),
		APIKeys:        map[string]struct{}{},
	}
	for _, k := range sec.APIKeys {
		secCfg.APIKeys[k] = struct{}{}
	}

	// wrap the router with the gateway, then telemetry middleware
	wrapped := auth.Gateway(secCfg)(router)
	wrapped = telemetry.Middleware(wrapped)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
