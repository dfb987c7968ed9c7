package main

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/stubapi"
)

func main() {
	port := os.Getenv("STUB_PORT")
	if port == "" {
		port = "9090"
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	server := stubapi.NewServer(logger)

	fmt.Printf("Stub cart backend listening on :%s\n", port)
	fmt.Printf("Catalog: GET http://localhost:%s/catalog\n", port)
	fmt.Printf("Guest session: POST http://localhost:%s/sessions/anonymous\n", port)

	if err := http.ListenAndServe(":"+port, server.Handler()); err != nil {
		fmt.Fprintf(os.Stderr, "Server stopped: %v\n", err)
		os.Exit(1)
	}
}
