package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"retrospect/pkg/httpx"
)

func main() {
	addr := flag.String("addr", ":8082", "listen address for net/http health probe")
	ver := flag.String("version", "dev", "version string to return")
	flag.Parse()

	srv := &http.Server{
		Addr:         *addr,
		Handler:      httpx.NetHTTPAdapter(httpx.HealthHandler(*ver)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	fmt.Printf("net/http health probe listening on %s\n", *addr)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Printf("net/http server exit: %v\n", err)
	}
}
