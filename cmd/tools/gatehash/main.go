package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/joho/godotenv"
)

// gatehash prints an argon2id hash suitable for GATE_PASSWORD_HASH.
func main() {
	password := flag.String("password", "", "storefront gate password (read from stdin when empty)")
	fromEnv := flag.Bool("env", false, "hash GATE_PASSWORD from the environment or .env")
	flag.Parse()

	value := *password
	if *fromEnv {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found, relying on environment variables")
		}
		value = os.Getenv("GATE_PASSWORD")
	}
	if value == "" {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			value = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Fatalf("read password: %v", err)
		}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		log.Fatal("password is empty")
	}

	hash, err := argon2id.CreateHash(value, argon2id.DefaultParams)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(hash)
}
