// delega-enc cifra un secreto (típicamente un client_secret de provider) con
// la master key de secretbox, para pegarlo en config.yaml.
//
//	SECRETBOX_MASTER_KEY=... delega-enc 'mi-client-secret'
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	sec "github.com/davidcastane/delega/internal/security/secretbox"
)

func main() {
	_ = godotenv.Load(".env")

	if len(os.Args) != 2 {
		log.Fatal("uso: delega-enc <secreto>")
	}
	if os.Getenv("SECRETBOX_MASTER_KEY") == "" {
		log.Fatal("SECRETBOX_MASTER_KEY not set")
	}

	enc, err := sec.Encrypt(os.Args[1])
	if err != nil {
		log.Fatalf("encrypt: %v", err)
	}
	fmt.Println(enc)
}
