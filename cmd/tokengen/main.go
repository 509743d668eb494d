// Command tokengen mints a bearer token for local testing of the socket and
// solo routes.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/auth"
	"github.com/DoyleJ11/word-duel-backend/internal/config"
	"github.com/DoyleJ11/word-duel-backend/internal/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	id := flag.String("id", "", "user id (token subject)")
	name := flag.String("name", "", "display name")
	avatar := flag.String("avatar", "", "avatar reference")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *id == "" {
		log.Fatal("tokengen: -id is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	issuer, err := auth.NewHMAC(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		log.Fatal(err)
	}

	tok, err := issuer.Issue(types.UserRef{ID: *id, DisplayName: *name, AvatarRef: *avatar}, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok)
}
