package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret (defaults to $JWT_SECRET)")
	subject := flag.String("sub", "", "Subject (external user id)")
	name := flag.String("name", "", "Display name claim")
	email := flag.String("email", "", "Email claim")
	issuer := flag.String("iss", os.Getenv("JWT_ISSUER"), "Issuer claim (defaults to $JWT_ISSUER)")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "Usage: devtoken -sub <user-id> [-name <name>] [-email <email>] [-secret <secret>] [-ttl 24h]")
		os.Exit(1)
	}
	if *secret == "" {
		*secret = "dev-secret"
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": *subject,
		"iat": now.Unix(),
		"exp": now.Add(*ttl).Unix(),
	}
	if *name != "" {
		claims["name"] = *name
	}
	if *email != "" {
		claims["email"] = *email
	}
	if *issuer != "" {
		claims["iss"] = *issuer
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
