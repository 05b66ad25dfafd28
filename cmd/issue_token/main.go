package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"detective_game/internal/service"

	"github.com/joho/godotenv"
)

// issue_token prints a bearer token for a fid, for local testing against
// a server that shares JWT_SECRET.
func main() {
	_ = godotenv.Load()

	fid := flag.Int64("fid", 0, "player fid")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *fid <= 0 {
		log.Fatal("-fid is required")
	}

	service.InitJWT()
	token, err := service.GenerateJWT(*fid, *ttl)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	fmt.Println(token)
}
